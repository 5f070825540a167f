// Package propagate maintains shadow flight rows: unowned records of an
// aircraft's other recent legs, surfaced so a user can see where their
// aircraft has been before their own flight.
package propagate

import (
	"context"
	"fmt"
	"time"

	"github.com/skyfleet/flightsync/internal/airports"
	"github.com/skyfleet/flightsync/internal/audit"
	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/internal/source"
	"github.com/skyfleet/flightsync/pkg/logger"
	"github.com/skyfleet/flightsync/pkg/metrics"
)

// FlightStore is the persistence surface the propagator needs
type FlightStore interface {
	ShadowByAirframe(airframeID string) ([]*flight.Flight, error)
	Create(f *flight.Flight) (int64, error)
	Delete(id int64) error
	ApplyGroupUpdate(flights []*flight.Flight, commits []*audit.ChangeCommit) error
	CountShadow() (int, error)
}

// Propagator reacts to reconciled updates by refreshing the shadow rows of
// each updated flight's aircraft. It only acts in the lookback window
// before departure; after that the aircraft's earlier movements stop being
// interesting.
type Propagator struct {
	store    FlightStore
	history  source.HistoryProvider
	airports *airports.Catalog
	lookback time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// New creates a propagator. lookback bounds both when the propagator runs
// (relative to the owning flight's departure) and which historical legs it
// materializes.
func New(store FlightStore, history source.HistoryProvider, catalog *airports.Catalog, lookback time.Duration, m *metrics.Metrics, log *logger.Logger) *Propagator {
	return &Propagator{
		store:    store,
		history:  history,
		airports: catalog,
		lookback: lookback,
		now:      time.Now,
		metrics:  m,
		logger:   log.Named("propagate"),
	}
}

// FlightsUpdated refreshes shadow rows for every distinct airframe in the
// updated set. Failures are logged, never surfaced; a stale shadow set
// corrects itself on the next pass.
func (p *Propagator) FlightsUpdated(ctx context.Context, flights []*flight.Flight) {
	seen := make(map[string]bool)
	for _, f := range flights {
		if f.IsShadow() || f.AirframeID == nil {
			continue
		}
		if seen[*f.AirframeID] {
			continue
		}
		seen[*f.AirframeID] = true

		if err := p.Refresh(ctx, f); err != nil {
			p.logger.Error("Failed to refresh shadow flights",
				logger.String("airframe", *f.AirframeID),
				logger.Error(err))
		}
	}

	if p.metrics != nil && len(seen) > 0 {
		if n, err := p.store.CountShadow(); err == nil {
			p.metrics.ShadowFlights.Set(float64(n))
		}
	}
}

// Refresh recomputes the shadow row set for one owned flight's aircraft:
// matching rows update in place, new legs create rows, vanished legs
// delete theirs.
func (p *Propagator) Refresh(ctx context.Context, owner *flight.Flight) error {
	if owner.AirframeID == nil {
		return nil
	}
	airframe := *owner.AirframeID

	departure := owner.EffectiveOut()
	windowStart := departure.Add(-p.lookback)
	now := p.now()
	if now.Before(windowStart) || now.After(departure) {
		p.logger.Debug("Outside pre-departure window, skipping shadow refresh",
			logger.String("airframe", airframe),
			logger.Time("departure", departure))
		return nil
	}

	legs, err := p.history.History(ctx, airframe)
	if err != nil {
		return fmt.Errorf("failed to fetch aircraft history: %w", err)
	}

	candidates := make(map[string]*flight.Flight)
	for _, leg := range legs {
		if !leg.OutTimeScheduled.Before(departure) || leg.OutTimeScheduled.Before(windowStart) {
			continue
		}
		shadow, ok := p.shadowFromLeg(leg, airframe)
		if !ok {
			continue
		}
		candidates[shadow.Identity().Key()] = shadow
	}

	existing, err := p.store.ShadowByAirframe(airframe)
	if err != nil {
		return fmt.Errorf("failed to load shadow flights: %w", err)
	}

	var updates []*flight.Flight
	created, deleted := 0, 0
	matched := make(map[string]bool)

	for _, row := range existing {
		// Rows outside this owner's window belong to another flight's
		// view of the same aircraft; leave them alone.
		if row.OutTimeScheduled.Before(windowStart) || !row.OutTimeScheduled.Before(departure) {
			continue
		}
		key := row.Identity().Key()
		cand, ok := candidates[key]
		if !ok {
			if err := p.store.Delete(row.ID); err != nil {
				return fmt.Errorf("failed to delete stale shadow flight %d: %w", row.ID, err)
			}
			deleted++
			continue
		}
		matched[key] = true
		updates = append(updates, refreshShadow(row, cand))
	}

	for key, cand := range candidates {
		if matched[key] {
			continue
		}
		if _, err := p.store.Create(cand); err != nil {
			return fmt.Errorf("failed to create shadow flight %s: %w", key, err)
		}
		created++
	}

	if len(updates) > 0 {
		if err := p.store.ApplyGroupUpdate(updates, nil); err != nil {
			return fmt.Errorf("failed to update shadow flights: %w", err)
		}
	}

	p.logger.Info("Refreshed shadow flights",
		logger.String("airframe", airframe),
		logger.Int("created", created),
		logger.Int("updated", len(updates)),
		logger.Int("deleted", deleted))

	return nil
}

// shadowFromLeg builds an unowned flight row from one historical leg.
// Legs whose airports are unknown to the catalog are dropped; without
// coordinates and a timezone the leg cannot be keyed or displayed.
func (p *Propagator) shadowFromLeg(leg source.AircraftLeg, airframe string) (*flight.Flight, bool) {
	dep, ok := p.airports.Get(leg.DepartureAirport)
	if !ok {
		p.logger.Debug("Dropping leg with unknown departure airport",
			logger.String("airport", leg.DepartureAirport))
		return nil, false
	}
	arr, ok := p.airports.Get(leg.ArrivalAirport)
	if !ok {
		p.logger.Debug("Dropping leg with unknown arrival airport",
			logger.String("airport", leg.ArrivalAirport))
		return nil, false
	}

	localDate, err := p.airports.LocalDate(leg.OutTimeScheduled, dep.Ident)
	if err != nil {
		p.logger.Debug("Dropping leg with unresolvable local date",
			logger.String("airport", dep.Ident),
			logger.Error(err))
		return nil, false
	}

	af := airframe
	shadow := &flight.Flight{
		Airline:          leg.Airline,
		Number:           leg.Number,
		LocalDate:        localDate,
		DepartureAirport: dep.Ident,
		ArrivalAirport:   arr.Ident,
		OutTimeScheduled: leg.OutTimeScheduled,
		InTimeScheduled:  leg.InTimeScheduled,
		AirframeID:       &af,
	}
	if leg.TailNumber != "" {
		tail := leg.TailNumber
		shadow.TailNumber = &tail
	}
	if leg.AircraftType != "" {
		typ := leg.AircraftType
		shadow.AircraftType = &typ
	}
	if !leg.InTimeScheduled.IsZero() && !leg.InTimeScheduled.Before(leg.OutTimeScheduled) {
		d := airports.DurationMinutes(leg.OutTimeScheduled, leg.InTimeScheduled)
		shadow.DurationMin = &d
	}
	return shadow, true
}

// refreshShadow carries a fresh leg's data onto an existing shadow row
func refreshShadow(row, cand *flight.Flight) *flight.Flight {
	next := *row
	next.OutTimeScheduled = cand.OutTimeScheduled
	next.InTimeScheduled = cand.InTimeScheduled
	if cand.TailNumber != nil {
		next.TailNumber = cand.TailNumber
	}
	if cand.AircraftType != nil {
		next.AircraftType = cand.AircraftType
	}
	if cand.DurationMin != nil {
		next.DurationMin = cand.DurationMin
	}
	return &next
}
