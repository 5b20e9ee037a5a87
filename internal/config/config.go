package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/rossigee/veo-video-proxy/internal/auth"
	"github.com/rossigee/veo-video-proxy/internal/minio"
	"github.com/rossigee/veo-video-proxy/internal/veo"
)

// Config holds all application configuration
type Config struct {
	// Provider
	ProjectID       string `mapstructure:"project-id"`
	Location        string `mapstructure:"location"`
	Model           string `mapstructure:"model"`
	BaseURL         string `mapstructure:"base-url"`
	CredentialsFile string `mapstructure:"credentials-file"`
	AccessToken     string `mapstructure:"access-token"`

	// Generation parameters
	Seed            int    `mapstructure:"seed"`
	StorageURI      string `mapstructure:"storage-uri"`
	AspectRatio     string `mapstructure:"aspect-ratio"`
	SampleCount     int    `mapstructure:"sample-count"`
	DurationSeconds int    `mapstructure:"duration-seconds"`

	// Polling and jobs
	PollAttempts      int           `mapstructure:"poll-attempts"`
	PollInterval      time.Duration `mapstructure:"poll-interval"`
	JobTimeout        time.Duration `mapstructure:"job-timeout"`
	MaxConcurrentJobs int           `mapstructure:"max-concurrent-jobs"`
	MaxImageBytes     int64         `mapstructure:"max-image-bytes"`

	// AllowPrivateAttachmentHosts lets attachments be fetched from loopback and
	// private networks.
	AllowPrivateAttachmentHosts bool `mapstructure:"allow-private-attachment-hosts"`

	// Server
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	TLSCert       string   `mapstructure:"tls-cert"`
	TLSKey        string   `mapstructure:"tls-key"`
	ClientCA      string   `mapstructure:"client-ca"`
	APITokensFile string   `mapstructure:"api-tokens-file"`
	APITokens     []string `mapstructure:"api-tokens"`

	// Object storage delivery, disabled when the bucket is empty
	MinioEndpoint  string `mapstructure:"minio-endpoint"`
	MinioAccessKey string `mapstructure:"minio-access-key"`
	MinioSecretKey string `mapstructure:"minio-secret-key"`
	MinioBucket    string `mapstructure:"minio-bucket"`
	MinioPrefix    string `mapstructure:"minio-prefix"`
	MinioRegion    string `mapstructure:"minio-region"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
}

// SetDefaults registers every key with its default value. Keys must be known
// to viper for environment variables to be picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("project-id", "")
	v.SetDefault("location", "us-central1")
	v.SetDefault("model", "veo-2.0-generate-001")
	v.SetDefault("base-url", "")
	v.SetDefault("credentials-file", "")
	v.SetDefault("access-token", "")

	v.SetDefault("seed", 0)
	v.SetDefault("storage-uri", "")
	v.SetDefault("aspect-ratio", veo.AspectLandscape)
	v.SetDefault("sample-count", 1)
	v.SetDefault("duration-seconds", 6)

	v.SetDefault("poll-attempts", veo.DefaultPollAttempts)
	v.SetDefault("poll-interval", veo.DefaultPollInterval)
	v.SetDefault("job-timeout", 30*time.Minute)
	v.SetDefault("max-concurrent-jobs", 2)
	v.SetDefault("max-image-bytes", 20<<20)
	v.SetDefault("allow-private-attachment-hosts", false)

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("tls-cert", "")
	v.SetDefault("tls-key", "")
	v.SetDefault("client-ca", "")
	v.SetDefault("api-tokens-file", "")
	v.SetDefault("api-tokens", []string{})

	v.SetDefault("minio-endpoint", "")
	v.SetDefault("minio-access-key", "")
	v.SetDefault("minio-secret-key", "")
	v.SetDefault("minio-bucket", "")
	v.SetDefault("minio-prefix", "")
	v.SetDefault("minio-region", "")

	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
}

// LoadDotEnv loads each file that exists into the process environment.
// Variables already set take precedence.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads configuration from environment, config file, and defaults.
// configFile may be empty to search the working directory and $HOME/.veo-proxy.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	// Environment variables (will be VEO_PROJECT_ID, etc.)
	v.SetEnvPrefix("VEO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.veo-proxy")

		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project-id cannot be empty (VEO_PROJECT_ID)")
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if !veo.ValidAspectRatio(c.AspectRatio) {
		return fmt.Errorf("aspect-ratio must be %s or %s, got %q", veo.AspectLandscape, veo.AspectPortrait, c.AspectRatio)
	}
	if c.SampleCount < 1 {
		return fmt.Errorf("sample-count must be at least 1")
	}
	if c.DurationSeconds < 1 {
		return fmt.Errorf("duration-seconds must be at least 1")
	}
	if c.PollAttempts < 1 {
		return fmt.Errorf("poll-attempts must be at least 1")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("job-timeout must be positive")
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max-concurrent-jobs must be at least 1")
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("max-image-bytes must be positive")
	}
	if c.StorageURI != "" && !strings.HasPrefix(c.StorageURI, "gs://") {
		return fmt.Errorf("storage-uri must be a gs:// URI")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls-cert and tls-key must be set together")
	}
	if c.MinioBucket != "" && c.MinioEndpoint == "" {
		return fmt.Errorf("minio-endpoint is required when minio-bucket is set")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log-format must be text or json")
	}
	return nil
}

// Veo returns the generation service configuration.
func (c *Config) Veo() veo.Config {
	return veo.Config{
		ProjectID:     c.ProjectID,
		Location:      c.Location,
		Model:         c.Model,
		BaseURL:       c.BaseURL,
		Seed:          c.Seed,
		StorageTarget: c.StorageURI,
		PollAttempts:  c.PollAttempts,
		PollInterval:  c.PollInterval,
	}
}

// Credentials returns where provider access tokens come from.
func (c *Config) Credentials() veo.CredentialsOptions {
	return veo.CredentialsOptions{
		AccessToken:     c.AccessToken,
		CredentialsFile: c.CredentialsFile,
	}
}

// Minio returns the object storage settings.
func (c *Config) Minio() minio.Config {
	return minio.Config{
		Endpoint:  c.MinioEndpoint,
		AccessKey: c.MinioAccessKey,
		SecretKey: c.MinioSecretKey,
		Bucket:    c.MinioBucket,
		Prefix:    c.MinioPrefix,
		Region:    c.MinioRegion,
	}
}

// Auth returns the API authentication settings.
func (c *Config) Auth() auth.Options {
	return auth.Options{
		TokensFile:   c.APITokensFile,
		Tokens:       c.APITokens,
		ClientCAFile: c.ClientCA,
	}
}

// ConfigureLogging applies the log level and format to the standard logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
