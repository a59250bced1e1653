package config

import (
	"fmt"
	"strings"

	"icemaker/internal/services"
)

// Validate ensures the configuration is usable. Every failure is tagged
// with services.ErrConfiguration so callers can classify it.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateGeocoder(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func invalid(setting, message string) error {
	return services.Wrap(services.ErrConfiguration, "config", setting, message, nil)
}

func (c *Config) validateDatabase() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return invalid("database.path", "must be set")
	}
	return nil
}

func (c *Config) validateGeocoder() error {
	if c.Geocoder.BaseURL == "" {
		return invalid("geocoder.base_url", "must be set")
	}
	if c.Geocoder.UserAgent == "" {
		return invalid("geocoder.user_agent", "must be set (the provider requires an identifying agent)")
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.NameThreshold <= 0 || c.Matching.NameThreshold > 1 {
		return invalid("matching.name_threshold", "must be between 0 and 1")
	}
	if c.Matching.StreetlessNameThreshold <= 0 || c.Matching.StreetlessNameThreshold > 1 {
		return invalid("matching.streetless_name_threshold", "must be between 0 and 1")
	}
	if c.Matching.StreetlessNameThreshold > c.Matching.NameThreshold {
		return invalid("matching.streetless_name_threshold", "must not exceed matching.name_threshold")
	}
	if c.Matching.GeocodeConfidence <= 0 || c.Matching.GeocodeConfidence > 1 {
		return invalid("matching.geocode_confidence", "must be between 0 and 1")
	}
	if c.Matching.ProximityMiles < 0 {
		return invalid("matching.proximity_miles", "must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return invalid("logging.format", fmt.Sprintf("unsupported value %q", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", fmt.Sprintf("unsupported value %q", c.Logging.Level))
	}
	return nil
}
