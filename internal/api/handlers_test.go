package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfleet/flightsync/internal/audit"
	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/internal/stats"
	"github.com/skyfleet/flightsync/internal/weather"
	"github.com/skyfleet/flightsync/pkg/logger"
)

type fakeFlights struct {
	byID       map[int64]*flight.Flight
	lastUserID *int64
	lastLimit  int
}

func (f *fakeFlights) GetByID(id int64) (*flight.Flight, error) {
	return f.byID[id], nil
}

func (f *fakeFlights) List(userID *int64, limit, offset int) ([]*flight.Flight, error) {
	f.lastUserID = userID
	f.lastLimit = limit
	var out []*flight.Flight
	for _, fl := range f.byID {
		if userID == nil || (fl.UserID != nil && *fl.UserID == *userID) {
			out = append(out, fl)
		}
	}
	return out, nil
}

type fakeChanges struct {
	commits []*audit.ChangeCommit
}

func (f *fakeChanges) ListByFlight(flightID int64) ([]*audit.ChangeCommit, error) {
	return f.commits, nil
}

type fakeEditor struct {
	lastID    int64
	lastPatch *flight.Patch
	lastActor int64
	result    *flight.Flight
}

func (f *fakeEditor) ApplyManualEdit(ctx context.Context, flightID int64, patch *flight.Patch, actorUserID int64) (*flight.Flight, error) {
	f.lastID = flightID
	f.lastPatch = patch
	f.lastActor = actorUserID
	return f.result, nil
}

type fakeStats struct {
	snap *stats.Snapshot
}

func (f *fakeStats) Snapshot() *stats.Snapshot { return f.snap }

type fakeWeather struct {
	reports map[string]*weather.METAR
}

func (f *fakeWeather) Get(code string) (*weather.METAR, bool) {
	m, ok := f.reports[code]
	return m, ok
}

type testEnv struct {
	flights *fakeFlights
	changes *fakeChanges
	editor  *fakeEditor
	stats   *fakeStats
	weather *fakeWeather
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userID := int64(7)
	env := &testEnv{
		flights: &fakeFlights{byID: map[int64]*flight.Flight{
			1: {ID: 1, UserID: &userID, Airline: "AC", Number: "856",
				DepartureAirport: "CYYZ", ArrivalAirport: "EGLL"},
			2: {ID: 2, Airline: "AC", Number: "856",
				DepartureAirport: "CYYZ", ArrivalAirport: "EGLL"},
		}},
		changes: &fakeChanges{},
		editor:  &fakeEditor{},
		stats:   &fakeStats{},
		weather: &fakeWeather{reports: map[string]*weather.METAR{}},
	}
	env.editor.result = env.flights.byID[1]

	h := NewHandler(env.flights, env.changes, env.editor, env.stats, env.weather, logger.NewNop())
	router := NewRouter(h, nil, false, []string{"*"}, logger.NewNop())
	env.server = httptest.NewServer(router.Routes())
	t.Cleanup(env.server.Close)
	return env
}

func getJSON(t *testing.T, url string, target interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if target != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

func TestListFlights(t *testing.T) {
	env := newTestEnv(t)

	var body struct {
		Flights []*flight.Flight `json:"flights"`
		Count   int              `json:"count"`
	}
	status := getJSON(t, env.server.URL+"/flights", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 100, env.flights.lastLimit)

	status = getJSON(t, env.server.URL+"/flights?user_id=7", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, body.Count)
	require.NotNil(t, env.flights.lastUserID)
	assert.Equal(t, int64(7), *env.flights.lastUserID)

	status = getJSON(t, env.server.URL+"/flights?user_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGetFlight(t *testing.T) {
	env := newTestEnv(t)

	var f flight.Flight
	status := getJSON(t, env.server.URL+"/flights/1", &f)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "AC", f.Airline)

	assert.Equal(t, http.StatusNotFound, getJSON(t, env.server.URL+"/flights/99", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, env.server.URL+"/flights/abc", nil))
}

func TestGetFlightChanges(t *testing.T) {
	env := newTestEnv(t)

	actor := int64(7)
	commit := audit.NewCommit(1, &actor, "manual-edit", time.Now())
	old := "AC-123"
	commit.Entries = []audit.ChangeEntry{{Field: "tail_number", OldValue: &old, NewValue: nil}}
	env.changes.commits = []*audit.ChangeCommit{commit}

	var body struct {
		FlightID int64                 `json:"flight_id"`
		Commits  []*audit.ChangeCommit `json:"commits"`
	}
	status := getJSON(t, env.server.URL+"/flights/1/changes", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), body.FlightID)
	require.Len(t, body.Commits, 1)
	assert.Equal(t, "manual-edit", body.Commits[0].Route)

	assert.Equal(t, http.StatusNotFound, getJSON(t, env.server.URL+"/flights/99/changes", nil))
}

func postEdit(t *testing.T, url, body string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestEditFlight(t *testing.T) {
	env := newTestEnv(t)

	body := `{
		"actor_user_id": 7,
		"tail_number": "C-FIVS",
		"diversion_airport": null,
		"out_time_actual": "2024-06-01T14:09:00Z",
		"comments": "gate change announced"
	}`
	status := postEdit(t, env.server.URL+"/flights/1/edits", body)
	assert.Equal(t, http.StatusOK, status)

	assert.Equal(t, int64(1), env.editor.lastID)
	assert.Equal(t, int64(7), env.editor.lastActor)
	p := env.editor.lastPatch
	require.NotNil(t, p)

	tail, ok := p.TailNumber.Value()
	assert.True(t, ok)
	assert.Equal(t, "C-FIVS", tail)
	assert.True(t, p.DiversionAirport.IsNull())
	out, ok := p.OutTimeActual.Value()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 14, 9, 0, 0, time.UTC), out)
	assert.True(t, p.InTimeActual.IsUnset())
	// Untouched classes of fields stay unset.
	assert.True(t, p.Airline.IsUnset())
}

func TestEditFlightValidation(t *testing.T) {
	env := newTestEnv(t)
	url := env.server.URL + "/flights/1/edits"

	// Missing actor.
	assert.Equal(t, http.StatusBadRequest, postEdit(t, url, `{"tail_number":"C-FIVS"}`))
	// No concrete fields.
	assert.Equal(t, http.StatusBadRequest, postEdit(t, url, `{"actor_user_id":7}`))
	// Bad timestamp.
	assert.Equal(t, http.StatusBadRequest, postEdit(t, url, `{"actor_user_id":7,"out_time_actual":"yesterday"}`))
	// Malformed JSON.
	assert.Equal(t, http.StatusBadRequest, postEdit(t, url, `{`))
	// Unknown flight.
	assert.Equal(t, http.StatusNotFound, postEdit(t, env.server.URL+"/flights/99/edits", `{"actor_user_id":7,"tail_number":"C-FIVS"}`))
}

func TestGetOnTimeStats(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, env.server.URL+"/stats/ontime", nil))

	env.stats.snap = &stats.Snapshot{
		GeneratedAt: time.Now().UTC(),
		WindowDays:  90,
		Flights:     3,
		Airlines:    []stats.AirlineStats{{Airline: "AC", Flights: 3}},
	}

	var snap stats.Snapshot
	status := getJSON(t, env.server.URL+"/stats/ontime", &snap)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, snap.Flights)
	require.Len(t, snap.Airlines, 1)
	assert.Equal(t, "AC", snap.Airlines[0].Airline)
}

func TestGetWeather(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, env.server.URL+"/weather/CYYZ", nil))

	env.weather.reports["CYYZ"] = &weather.METAR{StationID: "CYYZ", FlightCategory: "VFR"}

	var m weather.METAR
	status := getJSON(t, env.server.URL+"/weather/CYYZ", &m)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "VFR", m.FlightCategory)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, getJSON(t, env.server.URL+"/health", nil))
}
