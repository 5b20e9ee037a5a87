package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/rossigee/veo-video-proxy/internal/veo"
)

// bindFlags binds each named flag to the viper key of the same name.
func bindFlags(lookup func(string) *pflag.Flag, names ...string) {
	for _, name := range names {
		flag := lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %s is not defined", name))
		}
		_ = v.BindPFlag(name, flag)
	}
}

// newService builds the generation service from the loaded configuration.
func newService() (*veo.Service, error) {
	tokens, err := veo.NewTokenProvider(cfg.Credentials())
	if err != nil {
		return nil, err
	}
	return veo.NewService(cfg.Veo(), veo.NewHTTPTransport(nil, tokens)), nil
}
