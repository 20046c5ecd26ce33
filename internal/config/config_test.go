package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  path: /tmp/wf.db
notification:
  relay_interval: 2s
  redis:
    enabled: true
    addr: redis:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "/tmp/wf.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Notification.RelayInterval)
	assert.Equal(t, 10, cfg.Notification.MaxAttempts)
	assert.True(t, cfg.Notification.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Notification.Redis.Addr)
	assert.Equal(t, "workflow:events", cfg.Notification.Redis.Stream)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Empty(t, cfg.Workflow.StageGraphPath)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/workflow.db", cfg.Database.Path)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("WORKFLOW_PORT", "7070")
	t.Setenv("WORKFLOW_STAGE_GRAPH", "/etc/workflow/pipelines.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/etc/workflow/pipelines.yaml", cfg.Workflow.StageGraphPath)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "server: [unclosed\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Path: "wf.db", MaxOpenConns: 4},
			Logger:   LoggerConfig{Format: "json"},
			Notification: NotificationConfig{
				RelayInterval: time.Second,
				BatchSize:     10,
				MaxAttempts:   3,
			},
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"no database path", func(c *Config) { c.Database.Path = "" }, true},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, true},
		{"zero relay interval", func(c *Config) { c.Notification.RelayInterval = 0 }, true},
		{"zero max attempts", func(c *Config) { c.Notification.MaxAttempts = 0 }, true},
		{"redis without addr", func(c *Config) {
			c.Notification.Redis = RedisConfig{Enabled: true, Stream: "s"}
		}, true},
		{"metrics path without slash", func(c *Config) { c.Metrics.Path = "metrics" }, true},
		{"metrics disabled ignores path", func(c *Config) { c.Metrics = MetricsConfig{} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
