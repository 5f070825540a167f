package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/pkg/logger"
)

var testIdentity = flight.Identity{
	Airline:          "AC",
	Number:           "856",
	LocalDate:        "2024-06-01",
	DepartureAirport: "CYYZ",
	ArrivalAirport:   "EGLL",
}

func TestScheduleAdapterFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/schedule", r.URL.Path)
		assert.Equal(t, "AC", r.URL.Query().Get("airline"))
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("date"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		// diversion_airport explicit null; gates absent entirely
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"airline": "AC",
			"number": "856",
			"departure_airport": "CYYZ",
			"arrival_airport": "EGLL",
			"diversion_airport": null,
			"out_time_scheduled": "2024-06-01T14:00:00Z",
			"in_time_scheduled": "2024-06-01T21:25:00Z",
			"aircraft_type": "B77W"
		}`))
	}))
	defer srv.Close()

	a := NewScheduleAdapter(srv.URL, "secret", 5*time.Second, logger.NewNop())
	p, err := a.Fetch(context.Background(), testIdentity)
	require.NoError(t, err)

	airline, ok := p.Airline.Value()
	require.True(t, ok)
	assert.Equal(t, "AC", airline)

	out, ok := p.OutTimeScheduled.Value()
	require.True(t, ok)
	assert.True(t, out.Equal(time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)))

	assert.True(t, p.DiversionAirport.IsNull(), "present null maps to explicit null")
	assert.True(t, p.DepartureGate.IsUnset(), "absent key stays unset")
	assert.True(t, p.OutTimeActual.IsUnset())
}

func TestScheduleAdapterNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	a := NewScheduleAdapter(srv.URL, "", 5*time.Second, logger.NewNop())
	_, err := a.Fetch(context.Background(), testIdentity)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestScheduleAdapterMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"airline": `},
		{"bad timestamp", `{"out_time_scheduled": "yesterday-ish"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewScheduleAdapter(srv.URL, "", 5*time.Second, logger.NewNop())
			_, err := a.Fetch(context.Background(), testIdentity)
			assert.Error(t, err)
			assert.False(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestScheduleAdapterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewScheduleAdapter(srv.URL, "", 5*time.Second, logger.NewNop())
	_, err := a.Fetch(context.Background(), testIdentity)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound), "5xx is an error, not a definitive miss")
}

func TestLiveTrackAdapterSortsPoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/track", r.URL.Path)
		w.Write([]byte(`{
			"tail_number": "C-FIVS",
			"off_time_actual": "2024-06-01T14:22:00Z",
			"points": [
				{"timestamp": "2024-06-01T14:30:00Z", "lat": 44.1, "lon": -78.9, "altitude": 24000, "ground_speed": 430},
				{"timestamp": "2024-06-01T14:22:00Z", "lat": 43.7, "lon": -79.6, "altitude": 1200, "ground_speed": 180},
				{"timestamp": "2024-06-01T14:26:00Z", "lat": 43.9, "lon": -79.2, "altitude": 12000, "ground_speed": 320}
			]
		}`))
	}))
	defer srv.Close()

	a := NewLiveTrackAdapter("livetrack-a", srv.URL, "", 5*time.Second, logger.NewNop())
	p, err := a.Fetch(context.Background(), testIdentity)
	require.NoError(t, err)

	track, ok := p.Tracklog.Value()
	require.True(t, ok)
	require.Len(t, track, 3)
	for i := 1; i < len(track); i++ {
		assert.True(t, track[i].Timestamp.After(track[i-1].Timestamp), "samples must be time-ascending")
	}

	tail, ok := p.TailNumber.Value()
	require.True(t, ok)
	assert.Equal(t, "C-FIVS", tail)

	off, ok := p.OffTimeActual.Value()
	require.True(t, ok)
	assert.True(t, off.Equal(time.Date(2024, 6, 1, 14, 22, 0, 0, time.UTC)))
}

func TestLiveTrackAdapterEmptyTrack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"points": []}`))
	}))
	defer srv.Close()

	a := NewLiveTrackAdapter("livetrack-a", srv.URL, "", 5*time.Second, logger.NewNop())
	p, err := a.Fetch(context.Background(), testIdentity)
	require.NoError(t, err)
	assert.True(t, p.Tracklog.IsUnset(), "empty trace is no opinion, not an empty answer")
	assert.Equal(t, 0, p.ConcreteFields())
}

func TestRegistrationAdapterFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"airframe_id": "AF-9981",
			"tail_number": "C-FIVS",
			"aircraft_type": "B77W"
		}`))
	}))
	defer srv.Close()

	a := NewRegistrationAdapter(srv.URL, "", 5*time.Second, logger.NewNop())
	p, err := a.Fetch(context.Background(), testIdentity)
	require.NoError(t, err)

	af, ok := p.AirframeID.Value()
	require.True(t, ok)
	assert.Equal(t, "AF-9981", af)
	assert.True(t, p.OffTimeActual.IsUnset())
}

func TestRegistrationAdapterHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/aircraft/AF-9981/history", r.URL.Path)
		w.Write([]byte(`{
			"legs": [
				{
					"airline": "AC",
					"number": "855",
					"departure_airport": "EGLL",
					"arrival_airport": "CYYZ",
					"out_time_scheduled": "2024-05-31T12:30:00Z",
					"in_time_scheduled": "2024-05-31T20:05:00Z",
					"aircraft_type": "B77W"
				}
			]
		}`))
	}))
	defer srv.Close()

	a := NewRegistrationAdapter(srv.URL, "", 5*time.Second, logger.NewNop())
	legs, err := a.History(context.Background(), "AF-9981")
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, "855", legs[0].Number)
	assert.Equal(t, "EGLL", legs[0].DepartureAirport)
}

func TestFlightBoardAdapterFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/board", r.URL.Path)
		w.Write([]byte(`{
			"out_time_scheduled": "2024-06-01T14:00:00Z",
			"off_time_scheduled": "2024-06-01T14:18:00Z",
			"in_time_scheduled": "2024-06-01T21:25:00Z",
			"out_time_actual": "2024-06-01T14:09:00Z",
			"departure_gate": "E77"
		}`))
	}))
	defer srv.Close()

	a := NewFlightBoardAdapter(srv.URL, "", 5*time.Second, logger.NewNop())
	p, err := a.Fetch(context.Background(), testIdentity)
	require.NoError(t, err)

	off, ok := p.OffTimeScheduled.Value()
	require.True(t, ok)
	assert.True(t, off.Equal(time.Date(2024, 6, 1, 14, 18, 0, 0, time.UTC)))

	gate, ok := p.DepartureGate.Value()
	require.True(t, ok)
	assert.Equal(t, "E77", gate)

	assert.True(t, p.OnTimeActual.IsUnset())
}

func TestAdapterTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	a := NewScheduleAdapter(srv.URL, "", 20*time.Millisecond, logger.NewNop())
	_, err := a.Fetch(context.Background(), testIdentity)
	assert.Error(t, err)
}
