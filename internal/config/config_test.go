package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TRANSITSYNC_API_KEY", "test-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.winnipegtransit.com/v3", cfg.API.BaseURL)
	assert.Equal(t, "long", cfg.API.Usage)
	assert.False(t, cfg.API.ShortNames())
	assert.Equal(t, 100, cfg.Rate.QuotaPerMinute)
	assert.Equal(t, 100*time.Millisecond, cfg.Rate.MinInterval())
	assert.InDelta(t, 49.8951, cfg.Fallback.Lat, 0.0001)
}

func TestLoad_FileValues(t *testing.T) {
	t.Setenv("TRANSITSYNC_API_KEY", "")
	path := filepath.Join(t.TempDir(), "config.yml")
	body := `
api:
  key: file-key
  usage: short
cache:
  path: /tmp/variants.db
rate:
  quota_per_minute: 50
  min_interval_ms: 250
alerts:
  feed_url: https://example.com/alerts.pb
  interval_seconds: 30
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.API.Key)
	assert.True(t, cfg.API.ShortNames())
	assert.Equal(t, "/tmp/variants.db", cfg.Cache.Path)
	assert.Equal(t, 50, cfg.Rate.QuotaPerMinute)
	assert.Equal(t, 250*time.Millisecond, cfg.Rate.MinInterval())
	assert.Equal(t, 30*time.Second, cfg.Alerts.Interval())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  key: file-key\n"), 0o644))

	t.Setenv("TRANSITSYNC_API_KEY", "env-key")
	t.Setenv("TRANSITSYNC_USAGE", "short")
	t.Setenv("TRANSITSYNC_RATE_QUOTA", "25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.API.Key)
	assert.Equal(t, "short", cfg.API.Usage)
	assert.Equal(t, 25, cfg.Rate.QuotaPerMinute)
}

func TestLoad_MissingKeyFails(t *testing.T) {
	t.Setenv("TRANSITSYNC_API_KEY", "")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestLoad_BadUsageFails(t *testing.T) {
	t.Setenv("TRANSITSYNC_API_KEY", "test-key")
	t.Setenv("TRANSITSYNC_USAGE", "medium")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("api: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
