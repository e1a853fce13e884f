// Package config loads application configuration from an optional YAML file,
// with environment variables taking precedence over file values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Cache    CacheConfig    `yaml:"cache"`
	Rate     RateConfig     `yaml:"rate"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Fallback FallbackConfig `yaml:"fallback"`
}

// APIConfig configures the transit API client.
type APIConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	Key     string `yaml:"key" validate:"required"`
	// Usage selects the server-side naming style: "short" or "long".
	Usage string `yaml:"usage" validate:"oneof=short long"`
}

// CacheConfig configures the persistent variant cache.
type CacheConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// RateConfig bounds outgoing API traffic.
type RateConfig struct {
	QuotaPerMinute int `yaml:"quota_per_minute" validate:"min=1"`
	MinIntervalMS  int `yaml:"min_interval_ms" validate:"min=0"`
}

// AlertsConfig points at a GTFS-realtime service alerts feed. An empty URL
// disables alert polling.
type AlertsConfig struct {
	FeedURL         string `yaml:"feed_url"`
	IntervalSeconds int    `yaml:"interval_seconds" validate:"min=0"`
}

// FallbackConfig is the location used when no position provider answers.
type FallbackConfig struct {
	Lat float64 `yaml:"lat" validate:"min=-90,max=90"`
	Lon float64 `yaml:"lon" validate:"min=-180,max=180"`
}

// Load reads path if it exists, applies environment overrides, then
// validates. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.winnipegtransit.com/v3",
			Usage:   "long",
		},
		Cache: CacheConfig{Path: "./transitsync.db"},
		Rate: RateConfig{
			QuotaPerMinute: 100,
			MinIntervalMS:  100,
		},
		Alerts:   AlertsConfig{IntervalSeconds: 60},
		Fallback: FallbackConfig{Lat: 49.8951, Lon: -97.1384},
	}
}

func applyEnv(cfg *Config) {
	cfg.API.BaseURL = envStr("TRANSITSYNC_API_URL", cfg.API.BaseURL)
	cfg.API.Key = envStr("TRANSITSYNC_API_KEY", cfg.API.Key)
	cfg.API.Usage = envStr("TRANSITSYNC_USAGE", cfg.API.Usage)
	cfg.Cache.Path = envStr("TRANSITSYNC_CACHE_PATH", cfg.Cache.Path)
	cfg.Alerts.FeedURL = envStr("TRANSITSYNC_ALERTS_URL", cfg.Alerts.FeedURL)
	cfg.Rate.QuotaPerMinute = envInt("TRANSITSYNC_RATE_QUOTA", cfg.Rate.QuotaPerMinute)
	cfg.Rate.MinIntervalMS = envInt("TRANSITSYNC_RATE_INTERVAL_MS", cfg.Rate.MinIntervalMS)
}

// MinInterval returns the configured minimum spacing between API calls.
func (r RateConfig) MinInterval() time.Duration {
	return time.Duration(r.MinIntervalMS) * time.Millisecond
}

// Interval returns the alert polling period.
func (a AlertsConfig) Interval() time.Duration {
	return time.Duration(a.IntervalSeconds) * time.Second
}

// ShortNames reports whether the API should return abbreviated names.
func (a APIConfig) ShortNames() bool {
	return a.Usage == "short"
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
