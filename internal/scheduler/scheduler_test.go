package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/internal/reconcile"
	"github.com/skyfleet/flightsync/pkg/logger"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// memStore evaluates tier windows in memory with the same effective-time
// predicate the SQL store uses.
type memStore struct {
	flights []*flight.Flight
}

func (s *memStore) SelectCandidates(now time.Time, depFrom, depTo, arrFrom, arrTo time.Duration) ([]flight.Identity, error) {
	seen := map[string]bool{}
	var out []flight.Identity
	for _, f := range s.flights {
		if f.Airline == "" || f.Number == "" {
			continue
		}
		dep := f.EffectiveOut()
		arr := f.EffectiveIn()
		inDep := !dep.Before(now.Add(depFrom)) && !dep.After(now.Add(depTo))
		inArr := !arr.Before(now.Add(arrFrom)) && !arr.After(now.Add(arrTo))
		if !inDep && !inArr {
			continue
		}
		id := f.Identity()
		if !seen[id.Key()] {
			seen[id.Key()] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *memStore) GroupByIdentity(id flight.Identity) (*flight.Group, error) {
	g := &flight.Group{Identity: id}
	for _, f := range s.flights {
		if f.Identity() == id {
			g.Flights = append(g.Flights, f)
		}
	}
	return g, nil
}

type recordingEngine struct {
	mu         sync.Mutex
	calls      []string
	depths     []reconcile.Depth
	concurrent int
	maxSeen    int
	failFor    string
	block      time.Duration
}

func (e *recordingEngine) ReconcileGroup(ctx context.Context, group *flight.Group, depth reconcile.Depth) error {
	e.mu.Lock()
	e.concurrent++
	if e.concurrent > e.maxSeen {
		e.maxSeen = e.concurrent
	}
	e.calls = append(e.calls, group.Identity.Key())
	e.depths = append(e.depths, depth)
	e.mu.Unlock()

	if e.block > 0 {
		time.Sleep(e.block)
	}

	e.mu.Lock()
	e.concurrent--
	e.mu.Unlock()

	if group.Identity.Number == e.failFor {
		return errors.New("boom")
	}
	return nil
}

func (e *recordingEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func schedFlight(number string, out, in time.Time) *flight.Flight {
	uid := int64(1)
	return &flight.Flight{
		UserID:           &uid,
		Airline:          "AC",
		Number:           number,
		LocalDate:        "2024-06-01",
		DepartureAirport: "CYYZ",
		ArrivalAirport:   "EGLL",
		OutTimeScheduled: out,
		InTimeScheduled:  in,
	}
}

func tierByName(t *testing.T, name string) Tier {
	t.Helper()
	for _, tier := range DefaultTiers() {
		if tier.Name == name {
			return tier
		}
	}
	t.Fatalf("no tier named %s", name)
	return Tier{}
}

func TestTierGraduation(t *testing.T) {
	now := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	// Departing in 10 minutes, no actuals yet
	f := schedFlight("856", now.Add(10*time.Minute), now.Add(7*time.Hour+10*time.Minute))
	store := &memStore{flights: []*flight.Flight{f}}

	selectedBy := func(tier Tier) bool {
		ids, err := store.SelectCandidates(now, tier.DepFrom, tier.DepTo, tier.ArrFrom, tier.ArrTo)
		require.NoError(t, err)
		return len(ids) > 0
	}

	assert.False(t, selectedBy(tierByName(t, "daily")), "imminent departure is not daily work")
	assert.False(t, selectedBy(tierByName(t, "hourly")))
	assert.True(t, selectedBy(tierByName(t, "5min")))
	assert.True(t, selectedBy(tierByName(t, "1min")))
	assert.True(t, selectedBy(tierByName(t, "15s")))

	// The flight actually departed two hours ago and lands in ~5 hours:
	// the effective departure leaves the 1min window and the arrival is
	// not yet close enough to re-enter it
	actual := now.Add(-2 * time.Hour)
	f.OutTimeActual = &actual

	assert.False(t, selectedBy(tierByName(t, "1min")),
		"actual times move a flight between tiers")
	assert.False(t, selectedBy(tierByName(t, "15s")))
}

func TestRunTierReconcilesEachGroupOnce(t *testing.T) {
	now := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	// Two copies of one flight, one distinct flight
	a1 := schedFlight("856", now.Add(10*time.Minute), now.Add(7*time.Hour))
	a2 := schedFlight("856", now.Add(10*time.Minute), now.Add(7*time.Hour))
	b := schedFlight("100", now.Add(20*time.Minute), now.Add(3*time.Hour))
	store := &memStore{flights: []*flight.Flight{a1, a2, b}}

	eng := &recordingEngine{}
	s := NewScheduler(store, eng, DefaultTiers(), 2, fixedClock{now}, nil, logger.NewNop())

	s.RunTier(context.Background(), tierByName(t, "1min"))

	assert.Equal(t, 2, eng.callCount(), "one reconciliation per logical flight, not per row")
	for _, d := range eng.depths {
		assert.Equal(t, reconcile.DepthFull, d)
	}
}

func TestRunTierLiveDepth(t *testing.T) {
	now := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	f := schedFlight("856", now.Add(10*time.Minute), now.Add(7*time.Hour))
	store := &memStore{flights: []*flight.Flight{f}}

	eng := &recordingEngine{}
	s := NewScheduler(store, eng, DefaultTiers(), 2, fixedClock{now}, nil, logger.NewNop())

	s.RunTier(context.Background(), tierByName(t, "15s"))
	require.Equal(t, 1, eng.callCount())
	assert.Equal(t, reconcile.DepthLive, eng.depths[0])
}

func TestRunTierBoundedConcurrency(t *testing.T) {
	now := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	var flights []*flight.Flight
	numbers := []string{"100", "200", "300", "400", "500", "600"}
	for _, n := range numbers {
		flights = append(flights, schedFlight(n, now.Add(10*time.Minute), now.Add(7*time.Hour)))
	}
	store := &memStore{flights: flights}

	eng := &recordingEngine{block: 20 * time.Millisecond}
	s := NewScheduler(store, eng, DefaultTiers(), 2, fixedClock{now}, nil, logger.NewNop())

	s.RunTier(context.Background(), tierByName(t, "1min"))

	assert.Equal(t, len(numbers), eng.callCount())
	assert.LessOrEqual(t, eng.maxSeen, 2, "worker pool caps concurrent groups")
}

func TestRunTierGroupFailureDoesNotAbortPass(t *testing.T) {
	now := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

	a := schedFlight("100", now.Add(10*time.Minute), now.Add(7*time.Hour))
	b := schedFlight("200", now.Add(12*time.Minute), now.Add(7*time.Hour))
	c := schedFlight("300", now.Add(14*time.Minute), now.Add(7*time.Hour))
	store := &memStore{flights: []*flight.Flight{a, b, c}}

	eng := &recordingEngine{failFor: "200"}
	s := NewScheduler(store, eng, DefaultTiers(), 2, fixedClock{now}, nil, logger.NewNop())

	s.RunTier(context.Background(), tierByName(t, "1min"))
	assert.Equal(t, 3, eng.callCount(), "a failing group never blocks its siblings")
}

func TestStartStop(t *testing.T) {
	now := time.Now()
	store := &memStore{}
	eng := &recordingEngine{}

	tiers := []Tier{{
		Name:     "fast",
		Interval: 5 * time.Millisecond,
		Depth:    reconcile.DepthFull,
		DepFrom:  -time.Hour,
		DepTo:    time.Hour,
		ArrFrom:  -time.Hour,
		ArrTo:    time.Hour,
	}}

	s := NewScheduler(store, eng, tiers, 2, fixedClock{now}, nil, logger.NewNop())
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(25 * time.Millisecond)
	s.Stop()
}

func TestStartRequiresTiers(t *testing.T) {
	s := NewScheduler(&memStore{}, &recordingEngine{}, nil, 2, SystemClock(), nil, logger.NewNop())
	assert.Error(t, s.Start(context.Background()))
}
