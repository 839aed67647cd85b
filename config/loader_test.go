package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, 2, cfg.Events.RetentionDays)
	assert.False(t, cfg.RateLimit.Enabled)
	require.Len(t, cfg.Providers, 5)

	// 出厂顺序即优先级升序
	ids := make([]string, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"cerebras", "cohere", "gemini", "openrouter", "huggingface"}, ids)

	require.NoError(t, cfg.Validate())
}

func TestLoaderFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 9000
events:
  retention_days: 3
providers:
  - id: cerebras
    name: Cerebras
    priority: 10
    base_url: https://example.test
    chat_completions_path: /v1/chat/completions
    models:
      default: llama3.1-8b
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 3, cfg.Events.RetentionDays)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "llama3.1-8b", cfg.Providers[0].DefaultModel())
}

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoaderEnvOverride(t *testing.T) {
	t.Setenv("ORCHESTRATOR_SERVER_HTTP_PORT", "8888")
	t.Setenv("ORCHESTRATOR_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("ORCHESTRATOR_LOG_FORMAT", "console")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestBareEnvToggles(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		enabled bool
	}{
		{"truthy 1", "1", true},
		{"truthy yes", "YES", true},
		{"truthy true", "true", true},
		{"falsy 0", "0", false},
		{"falsy off", "off", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EVENTS_ENABLED", tt.value)
			cfg, err := NewLoader().Load()
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, cfg.Events.Enabled)
		})
	}

	t.Run("log file and level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "DEBUG")
		t.Setenv("LOG_FILE", "/var/log/gateway.log")
		cfg, err := NewLoader().Load()
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, []string{"/var/log/gateway.log"}, cfg.Log.OutputPaths)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.HTTPPort = 0 },
			wantErr: "invalid HTTP port",
		},
		{
			name:    "bad retention",
			mutate:  func(c *Config) { c.Events.RetentionDays = 0 },
			wantErr: "retention_days",
		},
		{
			name: "duplicate provider",
			mutate: func(c *Config) {
				c.Providers = append(c.Providers, c.Providers[0])
			},
			wantErr: "duplicate provider id",
		},
		{
			name: "empty base_url",
			mutate: func(c *Config) {
				c.Providers[0].BaseURL = ""
			},
			wantErr: "base_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	pg := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "u", Password: "p", Name: "gw", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=gw sslmode=disable", pg.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/gw?sslmode=disable", pg.URL())

	sq := DatabaseConfig{Driver: "sqlite", Name: "data/x.db"}
	assert.Equal(t, "data/x.db", sq.DSN())
	assert.Equal(t, "", sq.URL())
}
