// Package auth guards the generation API with API tokens or client certificates.
package auth

import (
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rossigee/veo-video-proxy/pkg/types"
)

// Options selects where credentials come from. Empty fields are skipped.
type Options struct {
	TokensFile   string
	Tokens       []string
	ClientCAFile string
}

// Validator handles authentication validation
type Validator struct {
	clientCAs      *x509.CertPool
	clientCALoaded bool            // Whether client CA certificates were loaded
	apiTokens      map[string]bool // Simple token validation
}

// NewValidator creates a new authentication validator
func NewValidator(opts Options) (*Validator, error) {
	validator := &Validator{
		clientCAs: x509.NewCertPool(),
		apiTokens: make(map[string]bool),
	}

	// Load client CA certificates
	if err := validator.loadClientCAs(opts.ClientCAFile); err != nil {
		return nil, fmt.Errorf("failed to load client CAs: %w", err)
	}

	// Load API tokens
	if err := validator.loadAPITokens(opts.TokensFile); err != nil {
		return nil, fmt.Errorf("failed to load API tokens: %w", err)
	}
	for _, token := range opts.Tokens {
		if token = strings.TrimSpace(token); token != "" {
			validator.apiTokens[token] = true
		}
	}

	if !validator.Enabled() {
		logrus.Warn("No API tokens or client CA configured, API authentication is disabled")
	}

	return validator, nil
}

// loadClientCAs loads client certificate authorities
func (v *Validator) loadClientCAs(caCertPath string) error {
	if caCertPath == "" {
		return nil
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA cert: %w", err)
	}

	if !v.clientCAs.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA cert %s", caCertPath)
	}

	v.clientCALoaded = true
	return nil
}

// loadAPITokens loads API tokens, one per line. Lines starting with # are ignored.
func (v *Validator) loadAPITokens(tokenFile string) error {
	if tokenFile == "" {
		return nil
	}

	content, err := os.ReadFile(tokenFile)
	if err != nil {
		return fmt.Errorf("failed to read API tokens: %w", err)
	}

	for _, line := range strings.Split(string(content), "\n") {
		token := strings.TrimSpace(line)
		if token != "" && !strings.HasPrefix(token, "#") {
			v.apiTokens[token] = true
		}
	}

	return nil
}

// Enabled reports whether any credential source was configured.
func (v *Validator) Enabled() bool {
	return len(v.apiTokens) > 0 || v.clientCALoaded
}

// Middleware returns Gin middleware for authentication
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Enabled() || v.validateAPIToken(c) {
			c.Next()
			return
		}

		// Client certificates are verified against the CA pool during the handshake
		if v.clientCALoaded && c.Request.TLS != nil && len(c.Request.TLS.VerifiedChains) > 0 {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
			Error:   "authentication required",
			Message: "provide valid API token or client certificate",
			Code:    http.StatusUnauthorized,
		})
	}
}

// validateAPIToken validates API token from Authorization or X-API-Token headers
func (v *Validator) validateAPIToken(c *gin.Context) bool {
	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok && token != "" {
		return v.apiTokens[token]
	}

	if token := c.GetHeader("X-API-Token"); token != "" {
		return v.apiTokens[token]
	}

	return false
}

// GetClientCAs returns the client CA certificate pool
func (v *Validator) GetClientCAs() *x509.CertPool {
	return v.clientCAs
}

// IsClientCALoaded returns whether client CA certificates were loaded
func (v *Validator) IsClientCALoaded() bool {
	return v.clientCALoaded
}
