// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (PROMPTWISE_* overrides)
//  2. Config file (~/.promptwise/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive data stays out of the config file: GEMINI_API_KEY is read by
// Genkit directly from the environment (its presence is checked here), and
// the PostgreSQL URL is bound only to an environment variable.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/promptwise/promptwise/internal/delivery"
	"github.com/promptwise/promptwise/internal/engine"
)

var (
	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxInline indicates the inline delivery limit is not positive.
	ErrInvalidMaxInline = errors.New("invalid max inline length")

	// ErrInvalidSessionTTL indicates the session TTL is not positive.
	ErrInvalidSessionTTL = errors.New("invalid session TTL")

	// ErrInvalidPostgresURL indicates the PostgreSQL URL does not parse.
	ErrInvalidPostgresURL = errors.New("invalid PostgreSQL URL")
)

// Config stores application configuration.
type Config struct {
	// ModelName is the Genkit model identifier, e.g. "googleai/gemini-2.5-flash".
	ModelName string `mapstructure:"model_name"`

	// MaxInline is the transport's single-message character limit.
	MaxInline int `mapstructure:"max_inline"`

	// Addr is the serve-mode listen address.
	Addr string `mapstructure:"addr"`

	// SessionTTL evicts abandoned chat conversations.
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	// PostgresURL enables persistence when set; empty disables it.
	// Environment-only (PROMPTWISE_POSTGRES_URL), never read from file.
	PostgresURL string `mapstructure:"postgres_url"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// LogJSON switches log output from text to JSON.
	LogJSON bool `mapstructure:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	return load(filepath.Join(home, ".promptwise"))
}

// load reads configuration with configDir as the primary search path.
func load(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", engine.DefaultModel)
	v.SetDefault("max_inline", delivery.DefaultMaxInline)
	v.SetDefault("addr", "127.0.0.1:3500")
	v.SetDefault("session_ttl", "30m")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds the PROMPTWISE_* overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; Validate only
// checks its presence.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "PROMPTWISE_MODEL_NAME")
	mustBind("max_inline", "PROMPTWISE_MAX_INLINE")
	mustBind("addr", "PROMPTWISE_ADDR")
	mustBind("session_ttl", "PROMPTWISE_SESSION_TTL")
	mustBind("postgres_url", "PROMPTWISE_POSTGRES_URL")
	mustBind("log_level", "PROMPTWISE_LOG_LEVEL")
	mustBind("log_json", "PROMPTWISE_LOG_JSON")
}

// Validate checks the configuration, fail-fast at startup.
func (c *Config) Validate() error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingAPIKey)
	}
	if c.ModelName == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if c.MaxInline <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxInline, c.MaxInline)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSessionTTL, c.SessionTTL)
	}
	if c.PostgresURL != "" {
		u, err := url.Parse(c.PostgresURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPostgresURL, err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("%w: scheme %q", ErrInvalidPostgresURL, u.Scheme)
		}
	}
	return nil
}

// PersistenceEnabled reports whether a PostgreSQL URL is configured.
func (c *Config) PersistenceEnabled() bool {
	return c.PostgresURL != ""
}
