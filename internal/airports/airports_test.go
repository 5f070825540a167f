package airports

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfleet/flightsync/pkg/logger"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	return NewCatalogFromAirports(logger.NewNop(),
		Airport{Ident: "CYYZ", IATA: "YYZ", Name: "Toronto Pearson", Latitude: 43.6777, Longitude: -79.6248, Elevation: 569, Timezone: "America/Toronto"},
		Airport{Ident: "EGLL", IATA: "LHR", Name: "London Heathrow", Latitude: 51.4706, Longitude: -0.4619, Elevation: 83, Timezone: "Europe/London"},
		Airport{Ident: "RJTT", IATA: "HND", Name: "Tokyo Haneda", Latitude: 35.5494, Longitude: 139.7798, Elevation: 35, Timezone: "Asia/Tokyo"},
	)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "airports.csv")
	csv := "ident,iata,name,latitude_deg,longitude_deg,elevation_ft,timezone\n" +
		"CYYZ,YYZ,Toronto Pearson,43.6777,-79.6248,569,America/Toronto\n" +
		"EGLL,LHR,London Heathrow,51.4706,-0.4619,83,Europe/London\n" +
		"XXXX,,Broken Row,not-a-number,0,0,UTC\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	c, err := LoadCatalog(path, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, c.Count(), "row with unparseable latitude is skipped")

	a, ok := c.Get("CYYZ")
	require.True(t, ok)
	assert.Equal(t, "America/Toronto", a.Timezone)
	assert.Equal(t, 569, a.Elevation)

	// IATA lookup resolves to the same airport
	byIATA, ok := c.Get("yyz")
	require.True(t, ok)
	assert.Equal(t, a.Ident, byIATA.Ident)

	_, ok = c.Get("ZZZZ")
	assert.False(t, ok)
}

func TestLocalDate(t *testing.T) {
	c := testCatalog(t)

	// 2024-06-01 02:30 UTC is still 2024-05-31 in Toronto (UTC-4 in June)
	instant := time.Date(2024, 6, 1, 2, 30, 0, 0, time.UTC)

	date, err := c.LocalDate(instant, "CYYZ")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-31", date)

	// Same instant is already 2024-06-01 in Tokyo (UTC+9)
	date, err = c.LocalDate(instant, "RJTT")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", date)

	_, err = c.LocalDate(instant, "ZZZZ")
	assert.Error(t, err)
}

func TestDistance(t *testing.T) {
	c := testCatalog(t)

	d, err := c.Distance("CYYZ", "EGLL")
	require.NoError(t, err)
	assert.InDelta(t, 5712_000, d, 30_000)

	// Symmetric
	back, err := c.Distance("EGLL", "CYYZ")
	require.NoError(t, err)
	assert.InDelta(t, d, back, 1)

	_, err = c.Distance("CYYZ", "ZZZZ")
	assert.Error(t, err)
}

func TestDurationMinutes(t *testing.T) {
	out := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	in := time.Date(2024, 6, 1, 17, 25, 0, 0, time.UTC)
	assert.Equal(t, 445, DurationMinutes(out, in))
	assert.Equal(t, -445, DurationMinutes(in, out))
}
