package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/pkg/logger"
)

type fakeSource struct {
	flights []*flight.Flight
	err     error
	since   time.Time
}

func (f *fakeSource) SelectCompleted(since time.Time) ([]*flight.Flight, error) {
	f.since = since
	return f.flights, f.err
}

func completedFlight(airline, dep, arr string, depDelay, arrDelay time.Duration) *flight.Flight {
	outSched := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	inSched := time.Date(2024, 6, 1, 21, 0, 0, 0, time.UTC)
	outAct := outSched.Add(depDelay)
	inAct := inSched.Add(arrDelay)
	return &flight.Flight{
		Airline:          airline,
		Number:           "100",
		DepartureAirport: dep,
		ArrivalAirport:   arr,
		OutTimeScheduled: outSched,
		InTimeScheduled:  inSched,
		OutTimeActual:    &outAct,
		InTimeActual:     &inAct,
	}
}

func TestRefreshComputesAggregates(t *testing.T) {
	src := &fakeSource{flights: []*flight.Flight{
		completedFlight("AC", "CYYZ", "EGLL", 10*time.Minute, 10*time.Minute),
		completedFlight("AC", "CYYZ", "EGLL", 20*time.Minute, 30*time.Minute),
		completedFlight("BA", "EGLL", "CYYZ", -5*time.Minute, 0),
	}}
	svc := NewService(src, 90, logger.NewNop())

	require.NoError(t, svc.Refresh(context.Background()))
	snap := svc.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.Flights)
	assert.Equal(t, 90, snap.WindowDays)

	require.Len(t, snap.Airlines, 2)
	ac := snap.Airlines[0]
	assert.Equal(t, "AC", ac.Airline)
	assert.Equal(t, 2, ac.Flights)
	assert.InDelta(t, 15.0, ac.MeanDepartureMin, 0.001)
	assert.InDelta(t, 20.0, ac.MeanArrivalMin, 0.001)
	// One arrival at +10 (on time), one at +30 (late).
	assert.InDelta(t, 50.0, ac.OnTimePercent, 0.001)

	ba := snap.Airlines[1]
	assert.Equal(t, "BA", ba.Airline)
	assert.InDelta(t, 100.0, ba.OnTimePercent, 0.001)
	assert.InDelta(t, -5.0, ba.MeanDepartureMin, 0.001)

	require.Len(t, snap.Routes, 2)
	assert.Equal(t, "CYYZ", snap.Routes[0].DepartureAirport)
	assert.Equal(t, "EGLL", snap.Routes[0].ArrivalAirport)
	assert.Equal(t, 2, snap.Routes[0].Flights)
}

func TestOnTimeBoundary(t *testing.T) {
	// Exactly 15 minutes late still counts as on time.
	src := &fakeSource{flights: []*flight.Flight{
		completedFlight("AC", "CYYZ", "EGLL", 0, 15*time.Minute),
		completedFlight("AC", "CYYZ", "EGLL", 0, 15*time.Minute+time.Second),
	}}
	svc := NewService(src, 90, logger.NewNop())

	require.NoError(t, svc.Refresh(context.Background()))
	snap := svc.Snapshot()
	require.Len(t, snap.Airlines, 1)
	assert.InDelta(t, 50.0, snap.Airlines[0].OnTimePercent, 0.001)
}

func TestRefreshWindowPassedToSource(t *testing.T) {
	src := &fakeSource{}
	svc := NewService(src, 30, logger.NewNop())

	require.NoError(t, svc.Refresh(context.Background()))
	expected := time.Now().UTC().AddDate(0, 0, -30)
	assert.WithinDuration(t, expected, src.since, time.Minute)
}

func TestRefreshErrorKeepsPreviousSnapshot(t *testing.T) {
	src := &fakeSource{flights: []*flight.Flight{
		completedFlight("AC", "CYYZ", "EGLL", 0, 0),
	}}
	svc := NewService(src, 90, logger.NewNop())
	require.NoError(t, svc.Refresh(context.Background()))
	first := svc.Snapshot()
	require.NotNil(t, first)

	src.err = errors.New("db locked")
	assert.Error(t, svc.Refresh(context.Background()))
	assert.Same(t, first, svc.Snapshot())

	// The listener path swallows the error.
	svc.FlightsUpdated(context.Background(), nil)
	assert.Same(t, first, svc.Snapshot())
}

func TestSnapshotNilBeforeFirstRefresh(t *testing.T) {
	svc := NewService(&fakeSource{}, 90, logger.NewNop())
	assert.Nil(t, svc.Snapshot())
}
