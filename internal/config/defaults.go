package config

const (
	defaultDBPath          = "~/.local/share/icemaker/icemaker.db"
	defaultConsumerDBPath  = ""
	defaultLogDir          = "~/.local/share/icemaker/logs"
	defaultLockDir         = "~/.local/share/icemaker"
	defaultGeocoderBaseURL = "https://nominatim.openstreetmap.org/search"
	defaultTimezoneURL     = "https://timeapi.io/api/timezone/coordinate"
	defaultUserAgent       = "icemaker/0.1 (rink directory builder)"
	defaultRateLimitMillis = 1000
	defaultRequestTimeout  = 10
	defaultRetryAttempts   = 4
	defaultRetryBaseMillis = 500
	defaultRetryMaxMillis  = 8000
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultBatchSize       = 50

	defaultNameThreshold           = 0.8
	defaultStreetlessNameThreshold = 0.6
	defaultProximityMiles          = 0.5
	defaultGeocodeConfidence       = 0.7
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Database: Database{
			Path:         defaultDBPath,
			ConsumerPath: defaultConsumerDBPath,
		},
		Paths: Paths{
			LogDir:  defaultLogDir,
			LockDir: defaultLockDir,
		},
		Geocoder: Geocoder{
			BaseURL:         defaultGeocoderBaseURL,
			TimezoneURL:     defaultTimezoneURL,
			UserAgent:       defaultUserAgent,
			RateLimitMillis: defaultRateLimitMillis,
			RequestTimeout:  defaultRequestTimeout,
			RetryAttempts:   defaultRetryAttempts,
			RetryBaseMillis: defaultRetryBaseMillis,
			RetryMaxMillis:  defaultRetryMaxMillis,
		},
		Matching: Matching{
			NameThreshold:           defaultNameThreshold,
			StreetlessNameThreshold: defaultStreetlessNameThreshold,
			ProximityMiles:          defaultProximityMiles,
			GeocodeConfidence:       defaultGeocodeConfidence,
		},
		Pipeline: Pipeline{
			BatchSize: defaultBatchSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
