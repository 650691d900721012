package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /var/lib/whenr/events.db
search:
  weights:
    primary: 2.0
    secondary: 0.5
  cache_ttl: 30s
log:
  format: json
metrics:
  addr: 127.0.0.1:9102
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/whenr/events.db", cfg.Database.Path)
	assert.Equal(t, 2.0, cfg.Search.Weights.Primary)
	assert.Equal(t, 0.5, cfg.Search.Weights.Secondary)
	assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:9102", cfg.Metrics.Addr)

	// Untouched keys keep their defaults
	assert.Equal(t, "english", cfg.Search.Locale)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WHENR_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("WHENR_SEARCH_MAX_LIMIT", "50")
	t.Setenv("WHENR_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "database:\n  path: /tmp/file.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, 50, cfg.Search.MaxLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"secondary outweighs primary", func(c *Config) { c.Search.Weights.Secondary = 1.5 }},
		{"zero secondary weight", func(c *Config) { c.Search.Weights.Secondary = 0 }},
		{"default above max limit", func(c *Config) { c.Search.DefaultLimit = 500 }},
		{"zero workers", func(c *Config) { c.Indexer.Workers = 0 }},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad metrics addr", func(c *Config) { c.Metrics.Addr = "not an address" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
