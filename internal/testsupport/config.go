package testsupport

import (
	"path/filepath"
	"testing"

	"icemaker/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp paths per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(base, "icemaker.db")
	cfg.Database.ConsumerPath = filepath.Join(base, "consumer.db")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.LockDir = filepath.Join(base, "locks")
	cfg.Geocoder.RateLimitMillis = 0

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithGeocoderURL points the geocoder at a test server.
func WithGeocoderURL(baseURL, timezoneURL string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Geocoder.BaseURL = baseURL
		cfg.Geocoder.TimezoneURL = timezoneURL
	}
}

// WithThresholds overrides the matching thresholds on the test config.
func WithThresholds(m config.Matching) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Matching = m
	}
}
