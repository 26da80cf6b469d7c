package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Auth modes for the HTTP API.
const (
	AuthRequired = "required"
	AuthOptional = "optional"
	AuthDisabled = "disabled"
)

// FallbackUserID is the fixed identity used when auth is optional/disabled
// and no valid token is presented. Testing shim, not a production security
// control.
const FallbackUserID = "550e8400-e29b-41d4-a716-446655440000"

// Config holds all configuration for the knowledger API server.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (database URL, embedding API key) must only come from environment
// variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"API_PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// Mode is "required", "optional", or "disabled". Optional mode attaches
	// identity when a valid token is present and otherwise proceeds with
	// FallbackUserID.
	Mode string `yaml:"mode" env:"AUTH_MODE" env-default:"optional"`

	// JWKSURL is the identity provider's JWKS endpoint used to verify
	// bearer tokens. Required unless Mode is "disabled".
	JWKSURL string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	// URL is the full connection string. Secret - env only.
	URL            string `yaml:"-" env:"DATABASE_URL"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// EmbeddingsConfig holds the embedding provider configuration.
type EmbeddingsConfig struct {
	Endpoint   string `yaml:"endpoint" env:"EMBEDDINGS_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model      string `yaml:"model" env:"EMBEDDINGS_MODEL" env-default:"text-embedding-004"`
	Dimensions int    `yaml:"dimensions" env:"EMBEDDINGS_DIMENSIONS" env-default:"768"`

	// APIKey is the provider secret. Secret - env only.
	APIKey string `yaml:"-" env:"EMBEDDINGS_API_KEY"`
}

// Load reads configuration from config.yaml (if present) with environment
// variable overrides, then validates that required secrets are set. The
// version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// A missing config.yaml is fine; env vars alone are enough.
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.Embeddings.APIKey == "" {
		return fmt.Errorf("EMBEDDINGS_API_KEY environment variable is required")
	}
	switch c.Auth.Mode {
	case AuthRequired, AuthOptional:
		if c.Auth.JWKSURL == "" {
			return fmt.Errorf("AUTH_JWKS_URL is required when auth mode is %q", c.Auth.Mode)
		}
	case AuthDisabled:
	default:
		return fmt.Errorf("invalid auth mode %q: must be required, optional, or disabled", c.Auth.Mode)
	}
	return nil
}
