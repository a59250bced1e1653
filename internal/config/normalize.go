package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGeocoder()
	c.normalizeLogging()
	c.normalizePipeline()
	return nil
}

func (c *Config) normalizeDatabase() error {
	var err error
	if c.Database.Path, err = expandPath(c.Database.Path); err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	if c.Database.ConsumerPath, err = expandPath(c.Database.ConsumerPath); err != nil {
		return fmt.Errorf("database.consumer_path: %w", err)
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.LockDir, err = expandPath(c.Paths.LockDir); err != nil {
		return fmt.Errorf("paths.lock_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGeocoder() {
	c.Geocoder.BaseURL = strings.TrimRight(strings.TrimSpace(c.Geocoder.BaseURL), "/")
	c.Geocoder.TimezoneURL = strings.TrimRight(strings.TrimSpace(c.Geocoder.TimezoneURL), "/")
	c.Geocoder.UserAgent = strings.TrimSpace(c.Geocoder.UserAgent)
	if c.Geocoder.RateLimitMillis < 0 {
		c.Geocoder.RateLimitMillis = 0
	}
	if c.Geocoder.RequestTimeout <= 0 {
		c.Geocoder.RequestTimeout = defaultRequestTimeout
	}
	if c.Geocoder.RetryAttempts <= 0 {
		c.Geocoder.RetryAttempts = defaultRetryAttempts
	}
	if c.Geocoder.RetryBaseMillis <= 0 {
		c.Geocoder.RetryBaseMillis = defaultRetryBaseMillis
	}
	if c.Geocoder.RetryMaxMillis < c.Geocoder.RetryBaseMillis {
		c.Geocoder.RetryMaxMillis = defaultRetryMaxMillis
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = defaultBatchSize
	}
}
