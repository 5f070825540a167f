// Package weather fetches and caches METAR reports for the airports
// referenced by tracked flights. Reports are refreshed in the background
// and after reconciliation passes touch a flight; fetch failures are
// logged and never surface to the pass that triggered them.
package weather

import "time"

// Config holds the weather subsystem settings
type Config struct {
	APIBaseURL      string        // Base URL for the METAR API
	RefreshInterval time.Duration // How often tracked airports are re-fetched
	RequestTimeout  time.Duration // Per-request HTTP timeout
	MaxRetries      int           // Retry attempts per fetch
	CacheExpiry     time.Duration // How long a report stays servable
}

// METAR is one surface observation as returned by the provider
type METAR struct {
	StationID      string  `json:"icaoId"`
	ObsTime        int64   `json:"obsTime"` // Unix seconds
	RawText        string  `json:"rawOb"`
	Temperature    float64 `json:"temp"`  // Celsius
	Dewpoint       float64 `json:"dewp"`  // Celsius
	WindDirection  int     `json:"wdir"`  // Degrees true
	WindSpeed      int     `json:"wspd"`  // Knots
	WindGust       int     `json:"wgst"`  // Knots, 0 if not gusting
	Visibility     string  `json:"visib"` // Statute miles, "10+" for unlimited
	Altimeter      float64 `json:"altim"` // hPa
	FlightCategory string  `json:"fltCat"`
}

// Observed returns the observation time as a time.Time
func (m *METAR) Observed() time.Time {
	return time.Unix(m.ObsTime, 0).UTC()
}
