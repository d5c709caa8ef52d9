package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Cache.Enabled)
	assert.Empty(t, cfg.Cache.Dir)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, int64(8<<20), cfg.Cache.MaxMemoryBytes)
	assert.Equal(t, "@hourly", cfg.Cache.CleanupSchedule)
	assert.Equal(t, "text", cfg.Logging.Format)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  enabled: true
  dir: /var/cache/templates
  ttl: 30m
  max_memory_bytes: 1048576
  cleanup_schedule: "@daily"
logging:
  verbose: true
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/templates", cfg.Cache.Dir)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, int64(1<<20), cfg.Cache.MaxMemoryBytes)
	assert.Equal(t, "@daily", cfg.Cache.CleanupSchedule)
	assert.True(t, cfg.Logging.Verbose)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TEMPLATEGUARD_CACHE_DIR", "/tmp/tg-cache")
	t.Setenv("TEMPLATEGUARD_LOGGING_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/tg-cache", cfg.Cache.Dir)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("bad log format", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Format = "xml"
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative memory bound", func(t *testing.T) {
		cfg := Default()
		cfg.Cache.MaxMemoryBytes = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad cron schedule", func(t *testing.T) {
		cfg := Default()
		cfg.Cache.CleanupSchedule = "whenever"
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty schedule allowed", func(t *testing.T) {
		cfg := Default()
		cfg.Cache.CleanupSchedule = ""
		assert.NoError(t, cfg.Validate())
	})
}
