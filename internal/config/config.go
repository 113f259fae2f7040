package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration for the protected
// app shell and the operator tool. Values come from environment
// variables (NODELOCK_ prefix) with an optional nodelock.yaml overlay.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Metrics MetricsConfig `yaml:"metrics" envconfig:"METRICS"`
	Tracing TracingConfig `yaml:"tracing" envconfig:"TRACING"`
}

// ServerConfig contains HTTP server configuration for the app shell.
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig throttles the activation endpoint; brute-forcing
// tokens through the UI should be slow even though it is hopeless.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"5"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"10"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/nodelock.log"`
}

// LicenseConfig locates the licensing artifacts. PrivateKeyFile is only
// meaningful to the operator tool; the app shell never reads it.
type LicenseConfig struct {
	TokenFile      string `yaml:"token_file" envconfig:"TOKEN_FILE" default:"license.key"`
	HistoryFile    string `yaml:"history_file" envconfig:"HISTORY_FILE" default:"license-history.csv"`
	PrivateKeyFile string `yaml:"private_key_file" envconfig:"PRIVATE_KEY_FILE" default:"signing-key.pem"`
	PublicKeyFile  string `yaml:"public_key_file" envconfig:"PUBLIC_KEY_FILE" default:"signing-key.pub"`
	// PublicKey overrides the embedded verification key (base64 raw
	// ed25519). Meant for staging builds signed with a staging key.
	PublicKey string `yaml:"public_key" envconfig:"PUBLIC_KEY"`
}

// MetricsConfig controls the local Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED" default:"true"`
}

// TracingConfig controls the local stdout span exporter. Off by default
// because span output is chatty; like metrics, spans never leave the
// machine.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED" default:"false"`
}

// Load builds the configuration from environment variables and the
// optional config file, then resolves relative paths against the
// executable directory.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("NODELOCK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(cfg, *fileCfg)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs overlays file values on top of the env-derived base.
// Only fields the file actually set (non-zero) win.
func mergeConfigs(base, file Config) Config {
	out := base
	if file.Server.Port != 0 {
		out.Server.Port = file.Server.Port
	}
	if file.Server.ReadTimeout != 0 {
		out.Server.ReadTimeout = file.Server.ReadTimeout
	}
	if file.Server.WriteTimeout != 0 {
		out.Server.WriteTimeout = file.Server.WriteTimeout
	}
	if file.Server.IdleTimeout != 0 {
		out.Server.IdleTimeout = file.Server.IdleTimeout
	}
	if file.Server.ShutdownTimeout != 0 {
		out.Server.ShutdownTimeout = file.Server.ShutdownTimeout
	}
	if file.Server.RateLimit.RPS != 0 {
		out.Server.RateLimit.RPS = file.Server.RateLimit.RPS
	}
	if file.Server.RateLimit.Burst != 0 {
		out.Server.RateLimit.Burst = file.Server.RateLimit.Burst
	}
	if file.Logging.Level != "" {
		out.Logging.Level = file.Logging.Level
	}
	if file.Logging.Output != "" {
		out.Logging.Output = file.Logging.Output
	}
	if file.Logging.FilePath != "" {
		out.Logging.FilePath = file.Logging.FilePath
	}
	if file.License.TokenFile != "" {
		out.License.TokenFile = file.License.TokenFile
	}
	if file.License.HistoryFile != "" {
		out.License.HistoryFile = file.License.HistoryFile
	}
	if file.License.PrivateKeyFile != "" {
		out.License.PrivateKeyFile = file.License.PrivateKeyFile
	}
	if file.License.PublicKeyFile != "" {
		out.License.PublicKeyFile = file.License.PublicKeyFile
	}
	if file.License.PublicKey != "" {
		out.License.PublicKey = file.License.PublicKey
	}
	return out
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if c.License.TokenFile == "" {
		return fmt.Errorf("license token file must be set")
	}
	return nil
}
