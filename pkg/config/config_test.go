package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
logger:
  level: debug
  json: true
http-server:
  port: 9090
db:
  path: /var/lib/celldb
  flush_threshold: 4096
  compact_threshold: 8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Logger.JSON)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Server.ReadHeaderTimeout, "unset fields keep defaults")
	assert.Equal(t, DBConfig{Path: "/var/lib/celldb", FlushThreshold: 4096, CompactThreshold: 8}, cfg.DB)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db:\n  flush_threshold: 0\n"), 0600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "flush_threshold")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"bad level", func(c *Config) { c.Logger.Level = "loud" }, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, false},
		{"empty path", func(c *Config) { c.DB.Path = "" }, false},
		{"negative compact threshold", func(c *Config) { c.DB.CompactThreshold = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoggerConfig_SlogLevel(t *testing.T) {
	lvl, err := LoggerConfig{Level: "warn"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
}
