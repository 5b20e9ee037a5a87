package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rossigee/veo-video-proxy/internal/config"
)

var (
	v       = viper.New()
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "veo-proxy",
	Short: "Video generation proxy for Vertex AI Veo",
	Long: `Turns a prompt and an optional image into generated videos using the
Vertex AI long-running prediction API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
			return err
		}
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := loaded.ConfigureLogging(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or $HOME/.veo-proxy/config.yaml)")
	flags.String("project-id", "", "Google Cloud project id")
	flags.String("location", "us-central1", "Vertex AI region")
	flags.String("model", "veo-2.0-generate-001", "Veo model id")
	flags.String("credentials-file", "", "service account JSON file (default: application default credentials)")
	flags.String("access-token", "", "static OAuth2 access token")
	flags.String("storage-uri", "", "gs:// prefix the provider writes videos to")
	flags.Int("poll-attempts", 30, "operation status checks before giving up")
	flags.Duration("poll-interval", 10*time.Second, "delay between status checks")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "text", "log format (text or json)")

	bindFlags(flags.Lookup,
		"project-id", "location", "model", "credentials-file", "access-token",
		"storage-uri", "poll-attempts", "poll-interval", "log-level", "log-format")
}
