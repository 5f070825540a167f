package airports

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/skyfleet/flightsync/internal/geo"
	"github.com/skyfleet/flightsync/pkg/logger"
)

// Airport represents one airport from the airport database CSV
type Airport struct {
	Ident     string  // ICAO code (e.g., "CYYZ")
	IATA      string  // IATA code (e.g., "YYZ"), may be empty
	Name      string
	Latitude  float64 // Decimal degrees
	Longitude float64 // Decimal degrees
	Elevation int     // Feet above sea level
	Timezone  string  // IANA timezone name (e.g., "America/Toronto")
}

// Catalog is an in-memory airport database with timezone-aware helpers.
// Loaded once at startup from a CSV file with columns:
// ident,iata,name,latitude_deg,longitude_deg,elevation_ft,timezone
type Catalog struct {
	byIdent map[string]*Airport
	byIATA  map[string]*Airport
	tzCache *gocache.Cache // ident -> *time.Location
	logger  *logger.Logger
}

// LoadCatalog parses the airport database CSV file
func LoadCatalog(path string, log *logger.Logger) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open airport database: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true

	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read airport database header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read airport database: %w", err)
	}

	c := &Catalog{
		byIdent: make(map[string]*Airport, len(records)),
		byIATA:  make(map[string]*Airport, len(records)),
		tzCache: gocache.New(gocache.NoExpiration, 0),
		logger:  log.Named("airports"),
	}

	for _, record := range records {
		if len(record) < 7 {
			continue
		}

		lat, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			continue
		}

		a := &Airport{
			Ident:     strings.ToUpper(strings.TrimSpace(record[0])),
			IATA:      strings.ToUpper(strings.TrimSpace(record[1])),
			Name:      record[2],
			Latitude:  lat,
			Longitude: lon,
			Timezone:  strings.TrimSpace(record[6]),
		}

		// Elevation might be empty
		if record[5] != "" {
			if elev, err := strconv.ParseFloat(record[5], 64); err == nil {
				a.Elevation = int(elev)
			}
		}

		c.byIdent[a.Ident] = a
		if a.IATA != "" {
			c.byIATA[a.IATA] = a
		}
	}

	if len(c.byIdent) == 0 {
		return nil, fmt.Errorf("no usable airports found in %s", path)
	}

	c.logger.Info("Loaded airport database",
		logger.String("path", path),
		logger.Int("airports", len(c.byIdent)))

	return c, nil
}

// NewCatalogFromAirports builds a catalog directly from airport values. Used in tests.
func NewCatalogFromAirports(log *logger.Logger, airports ...Airport) *Catalog {
	c := &Catalog{
		byIdent: make(map[string]*Airport, len(airports)),
		byIATA:  make(map[string]*Airport, len(airports)),
		tzCache: gocache.New(gocache.NoExpiration, 0),
		logger:  log.Named("airports"),
	}
	for i := range airports {
		a := airports[i]
		c.byIdent[a.Ident] = &a
		if a.IATA != "" {
			c.byIATA[a.IATA] = &a
		}
	}
	return c
}

// Get returns an airport by ICAO ident or IATA code
func (c *Catalog) Get(code string) (*Airport, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if a, ok := c.byIdent[code]; ok {
		return a, true
	}
	if a, ok := c.byIATA[code]; ok {
		return a, true
	}
	return nil, false
}

// Count returns the number of airports in the catalog
func (c *Catalog) Count() int {
	return len(c.byIdent)
}

// Location returns the *time.Location for an airport, cached after first use
func (c *Catalog) Location(code string) (*time.Location, error) {
	a, ok := c.Get(code)
	if !ok {
		return nil, fmt.Errorf("unknown airport: %s", code)
	}

	if cached, found := c.tzCache.Get(a.Ident); found {
		return cached.(*time.Location), nil
	}

	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q for airport %s: %w", a.Timezone, a.Ident, err)
	}
	c.tzCache.Set(a.Ident, loc, gocache.NoExpiration)

	return loc, nil
}

// LocalDate projects an instant into the airport's timezone and returns the
// local calendar date as "YYYY-MM-DD". Provider pages index flights by the
// departure airport's local date, never UTC.
func (c *Catalog) LocalDate(instant time.Time, code string) (string, error) {
	loc, err := c.Location(code)
	if err != nil {
		return "", err
	}
	return instant.In(loc).Format("2006-01-02"), nil
}

// Distance returns the great-circle distance in meters between two airports
func (c *Catalog) Distance(fromCode, toCode string) (float64, error) {
	from, ok := c.Get(fromCode)
	if !ok {
		return 0, fmt.Errorf("unknown airport: %s", fromCode)
	}
	to, ok := c.Get(toCode)
	if !ok {
		return 0, fmt.Errorf("unknown airport: %s", toCode)
	}
	return geo.Haversine(from.Latitude, from.Longitude, to.Latitude, to.Longitude), nil
}

// DurationMinutes returns the whole number of minutes between two instants.
// Negative results are possible for ill-ordered inputs; callers decide.
func DurationMinutes(out, in time.Time) int {
	return int(in.Sub(out) / time.Minute)
}
