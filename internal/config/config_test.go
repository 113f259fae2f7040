package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 5.0, cfg.Server.RateLimit.RPS)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)

	// Relative artifact paths are anchored at the executable directory.
	assert.True(t, filepath.IsAbs(cfg.License.TokenFile))
	assert.Equal(t, "license.key", filepath.Base(cfg.License.TokenFile))
	assert.Equal(t, "license-history.csv", filepath.Base(cfg.License.HistoryFile))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("NODELOCK_SERVER_PORT", "9999")
	t.Setenv("NODELOCK_LOGGING_LEVEL", "debug")
	t.Setenv("NODELOCK_LICENSE_TOKEN_FILE", "/var/lib/nodelock/license.key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/lib/nodelock/license.key", cfg.License.TokenFile)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8080},
			Logging: LoggingConfig{Level: "info"},
			License: LicenseConfig{TokenFile: "license.key"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"no token file", func(c *Config) { c.License.TokenFile = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMergeConfigs(t *testing.T) {
	base := Config{
		Server:  ServerConfig{Port: 8080, ReadTimeout: 15 * time.Second},
		Logging: LoggingConfig{Level: "info", Output: "console"},
		License: LicenseConfig{TokenFile: "license.key"},
	}
	file := Config{
		Server:  ServerConfig{Port: 9090},
		Logging: LoggingConfig{Level: "debug"},
	}

	merged := mergeConfigs(base, file)

	assert.Equal(t, 9090, merged.Server.Port)
	assert.Equal(t, "debug", merged.Logging.Level)
	// Unset file fields keep the base values.
	assert.Equal(t, 15*time.Second, merged.Server.ReadTimeout)
	assert.Equal(t, "console", merged.Logging.Output)
	assert.Equal(t, "license.key", merged.License.TokenFile)
}

func TestMergeConfigsRateLimitFields(t *testing.T) {
	base := Config{
		Server: ServerConfig{
			Port:      8080,
			RateLimit: RateLimitConfig{Enabled: true, RPS: 5, Burst: 10},
		},
	}
	file := Config{
		Server: ServerConfig{
			RateLimit: RateLimitConfig{RPS: 2},
		},
	}

	merged := mergeConfigs(base, file)

	// A file that only tunes the rate must not wipe out the burst or
	// disable the limiter.
	assert.Equal(t, 2.0, merged.Server.RateLimit.RPS)
	assert.Equal(t, 10, merged.Server.RateLimit.Burst)
	assert.True(t, merged.Server.RateLimit.Enabled)
}

func TestResolveAgainst(t *testing.T) {
	assert.Equal(t, "/abs/file", resolveAgainst("/base", "/abs/file"))
	assert.Equal(t, filepath.Join("/base", "file"), resolveAgainst("/base", "file"))
	assert.Equal(t, "", resolveAgainst("/base", ""))
}
