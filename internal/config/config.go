// Package config loads and validates the TOML application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server      ServerConfig      `toml:"server"`      // HTTP server settings
	Logging     LoggingConfig     `toml:"logging"`     // Application logging settings
	Storage     StorageConfig     `toml:"storage"`     // Data persistence settings
	Airports    AirportsConfig    `toml:"airports"`    // Airport reference database settings
	Sources     SourcesConfig     `toml:"sources"`     // External flight-data provider settings
	Scheduler   SchedulerConfig   `toml:"scheduler"`   // Refresh tier and worker pool settings
	Propagation PropagationConfig `toml:"propagation"` // Shadow flight propagation settings
	Weather     WeatherConfig     `toml:"wx"`          // Airport weather fetching and caching settings
	Metrics     MetricsConfig     `toml:"metrics"`     // Prometheus metrics settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the API server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Type       string `toml:"type"`        // Storage backend type (currently only "sqlite" is supported)
	SQLitePath string `toml:"sqlite_path"` // Path to the SQLite database file
}

// AirportsConfig contains the airport reference database configuration
type AirportsConfig struct {
	DBPath string `toml:"db_path"` // Path to airport database CSV file (OurAirports format)
}

// SourceConfig configures one external flight-data provider. Every
// provider is independently togglable; a disabled provider is simply
// skipped by the reconciliation cascade.
type SourceConfig struct {
	Enabled     bool   `toml:"enabled"`         // Whether this provider participates in reconciliation
	BaseURL     string `toml:"base_url"`        // Provider API base URL
	APIKey      string `toml:"api_key"`         // API key sent as X-API-Key (empty for none)
	TimeoutSecs int    `toml:"timeout_seconds"` // Per-request HTTP timeout in seconds
}

// SourcesConfig contains the provider cascade configuration
type SourcesConfig struct {
	Schedule           SourceConfig `toml:"schedule"`            // Scheduled-times provider (queried first)
	LiveTrackPrimary   SourceConfig `toml:"livetrack_primary"`   // Primary live-position provider
	LiveTrackSecondary SourceConfig `toml:"livetrack_secondary"` // Fallback live-position provider
	Registration       SourceConfig `toml:"registration"`        // Registration/aircraft-history provider
	FlightBoard        SourceConfig `toml:"flightboard"`         // Airport flight-board provider (last resort)
}

// TierConfig overrides one refresh tier's windows. Offsets are signed
// seconds relative to now: negative is past, positive is future.
type TierConfig struct {
	Name         string `toml:"name"`             // Tier name, must match one of the built-in tiers
	IntervalSecs int    `toml:"interval_seconds"` // Refresh cadence in seconds
	DepFromSecs  int    `toml:"dep_from_seconds"` // Earliest effective departure offset selected
	DepToSecs    int    `toml:"dep_to_seconds"`   // Latest effective departure offset selected
	ArrFromSecs  int    `toml:"arr_from_seconds"` // Earliest effective arrival offset selected
	ArrToSecs    int    `toml:"arr_to_seconds"`   // Latest effective arrival offset selected
}

// SchedulerConfig contains refresh scheduling configuration
type SchedulerConfig struct {
	Workers int          `toml:"workers"` // Concurrent flight groups per tier pass (default: 4)
	Tiers   []TierConfig `toml:"tiers"`   // Optional per-tier window overrides
}

// PropagationConfig contains shadow flight configuration
type PropagationConfig struct {
	Enabled       bool `toml:"enabled"`        // Whether aircraft history propagation runs at all
	LookbackHours int  `toml:"lookback_hours"` // Pre-departure window for shadow legs in hours (default: 48)
}

// WeatherConfig contains airport weather configuration
type WeatherConfig struct {
	Enabled                bool   `toml:"enabled"`                  // Whether weather reports are fetched
	APIBaseURL             string `toml:"api_base_url"`             // Base URL for the METAR/TAF API
	RefreshIntervalMinutes int    `toml:"refresh_interval_minutes"` // Weather data refresh interval in minutes
	RequestTimeoutSeconds  int    `toml:"request_timeout_seconds"`  // HTTP request timeout in seconds
	MaxRetries             int    `toml:"max_retries"`              // Maximum number of retry attempts for failed requests
	CacheExpiryMinutes     int    `toml:"cache_expiry_minutes"`     // How long a fetched report stays servable
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`   // Whether /metrics is exposed
	Namespace string `toml:"namespace"` // Metric namespace prefix (default: "flightsync")
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration from the preferred path, then
// the usual locations
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,
		"configs/config.toml",
		"config.toml",
	}

	var lastErr error
	for _, path := range searchPaths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			lastErr = fmt.Errorf("config file not found: %s", path)
			continue
		}
		config, err := Load(path)
		if err != nil {
			lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
			continue
		}
		return config, nil
	}

	return nil, lastErr
}

// Timeout returns the provider's HTTP timeout as a duration
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// Lookback returns the propagation window as a duration
func (p PropagationConfig) Lookback() time.Duration {
	return time.Duration(p.LookbackHours) * time.Hour
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}

	// Validate logging config
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be 'json' or 'console')", c.Logging.Format)
	}

	// Validate storage config
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (only 'sqlite' is supported)", c.Storage.Type)
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "flightsync.db"
	}

	if c.Airports.DBPath == "" {
		return fmt.Errorf("airports db_path is required")
	}

	// Validate sources: at least one provider must be able to answer
	if err := c.validateSources(); err != nil {
		return err
	}

	// Validate scheduler config
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = 4
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("invalid scheduler workers: %d (must be >= 1)", c.Scheduler.Workers)
	}
	for i, tier := range c.Scheduler.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("scheduler tier %d has no name", i)
		}
		if tier.IntervalSecs <= 0 {
			return fmt.Errorf("scheduler tier %s has invalid interval: %d", tier.Name, tier.IntervalSecs)
		}
		if tier.DepFromSecs > tier.DepToSecs {
			return fmt.Errorf("scheduler tier %s has inverted departure window", tier.Name)
		}
		if tier.ArrFromSecs > tier.ArrToSecs {
			return fmt.Errorf("scheduler tier %s has inverted arrival window", tier.Name)
		}
	}

	// Validate propagation config
	if c.Propagation.LookbackHours == 0 {
		c.Propagation.LookbackHours = 48
	}
	if c.Propagation.LookbackHours < 0 {
		return fmt.Errorf("invalid propagation lookback_hours: %d", c.Propagation.LookbackHours)
	}

	// Validate weather config
	if c.Weather.Enabled {
		if c.Weather.APIBaseURL == "" {
			return fmt.Errorf("weather api_base_url is required when weather is enabled")
		}
		if c.Weather.RefreshIntervalMinutes == 0 {
			c.Weather.RefreshIntervalMinutes = 15
		}
		if c.Weather.RequestTimeoutSeconds == 0 {
			c.Weather.RequestTimeoutSeconds = 10
		}
		if c.Weather.MaxRetries == 0 {
			c.Weather.MaxRetries = 3
		}
		if c.Weather.CacheExpiryMinutes == 0 {
			c.Weather.CacheExpiryMinutes = 60
		}
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "flightsync"
	}

	return nil
}

func (c *Config) validateSources() error {
	sources := map[string]*SourceConfig{
		"schedule":            &c.Sources.Schedule,
		"livetrack_primary":   &c.Sources.LiveTrackPrimary,
		"livetrack_secondary": &c.Sources.LiveTrackSecondary,
		"registration":        &c.Sources.Registration,
		"flightboard":         &c.Sources.FlightBoard,
	}

	anyEnabled := false
	for name, s := range sources {
		if !s.Enabled {
			continue
		}
		anyEnabled = true
		if s.BaseURL == "" {
			return fmt.Errorf("source %s is enabled but has no base_url", name)
		}
		if s.TimeoutSecs == 0 {
			s.TimeoutSecs = 15
		}
		if s.TimeoutSecs < 0 {
			return fmt.Errorf("source %s has invalid timeout_seconds: %d", name, s.TimeoutSecs)
		}
	}

	if !anyEnabled {
		return fmt.Errorf("no flight-data sources enabled")
	}

	return nil
}
