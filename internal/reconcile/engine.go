// Package reconcile merges partial updates from external flight-data
// sources into stored flight rows. One reconciliation pass serves every
// user's copy of the same physical flight.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skyfleet/flightsync/internal/audit"
	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/internal/source"
	"github.com/skyfleet/flightsync/pkg/logger"
	"github.com/skyfleet/flightsync/pkg/metrics"
)

// Depth selects how much of the source cascade a pass runs. The finest
// scheduler tiers only refresh live position; scheduling metadata barely
// moves on a 15 second horizon and the metadata sources are the most
// rate-limited.
type Depth string

const (
	DepthFull Depth = "full"
	DepthLive Depth = "live"
)

// RouteReconcile tags automated commits in the change history
const RouteReconcile = "reconcile"

// identityRequired are the fields that must be answered before the
// registration lookup is skipped. An implausible tracklog also forces the
// lookup regardless.
var identityRequired = func(p *flight.Patch) bool {
	return !p.AirframeID.IsUnset() && !p.TailNumber.IsUnset() && !p.AircraftType.IsUnset()
}

// timesRequired are the fields that must be answered before the flight
// board is skipped as a last resort.
var timesRequired = func(p *flight.Patch) bool {
	return !p.OutTimeScheduled.IsUnset() && !p.InTimeScheduled.IsUnset() &&
		!p.OffTimeActual.IsUnset() && !p.OnTimeActual.IsUnset()
}

// FlightStore is the persistence surface the engine writes through
type FlightStore interface {
	GetByID(id int64) (*flight.Flight, error)
	GroupByIdentity(id flight.Identity) (*flight.Group, error)
	ApplyGroupUpdate(flights []*flight.Flight, commits []*audit.ChangeCommit) error
}

// UpdateListener is notified after a pass writes new flight state.
// Notifications are fire-and-forget; listener failures never surface into
// the pass that triggered them.
type UpdateListener interface {
	FlightsUpdated(ctx context.Context, flights []*flight.Flight)
}

// Sources holds the adapters of the cascade. Any entry may be nil when the
// provider is disabled; the cascade skips it.
type Sources struct {
	Schedule           source.Adapter
	LiveTrackPrimary   source.Adapter
	LiveTrackSecondary source.Adapter
	Registration       source.Adapter
	FlightBoard        source.Adapter
}

// Engine runs the reconciliation cascade for flight groups
type Engine struct {
	store     FlightStore
	sources   Sources
	validator *Validator
	metrics   *metrics.Metrics
	logger    *logger.Logger
	listeners []UpdateListener
}

// NewEngine creates a reconciliation engine
func NewEngine(store FlightStore, sources Sources, validator *Validator, m *metrics.Metrics, log *logger.Logger) *Engine {
	return &Engine{
		store:     store,
		sources:   sources,
		validator: validator,
		metrics:   m,
		logger:    log.Named("reconcile"),
	}
}

// AddListener registers a post-update subscriber
func (e *Engine) AddListener(l UpdateListener) {
	e.listeners = append(e.listeners, l)
}

// ReconcileGroup runs one cascade pass for a logical flight group and
// applies the merged result to every row in it, atomically.
func (e *Engine) ReconcileGroup(ctx context.Context, group *flight.Group, depth Depth) error {
	if len(group.Flights) == 0 {
		return nil
	}

	acc := &flight.Patch{}

	// Step 1: scheduled times, the cheapest and most complete source
	if depth == DepthFull {
		acc.Merge(e.fetch(ctx, e.sources.Schedule, group.Identity))
	}

	// Step 2: live position trace, primary then secondary
	track := e.fetch(ctx, e.sources.LiveTrackPrimary, group.Identity)
	if track == nil || track.Tracklog.IsUnset() {
		if fallback := e.fetch(ctx, e.sources.LiveTrackSecondary, group.Identity); fallback != nil {
			track = fallback
		}
	}
	acc.Merge(track)

	// Step 3: if the trace cannot belong to this route, or identity fields
	// are still open, ask the registration lookup for a fresh fix
	needRegistration := false
	if tl, ok := acc.Tracklog.Value(); ok {
		if !e.validator.Plausible(tl, group.Identity.DepartureAirport, group.Identity.ArrivalAirport) {
			e.logger.Warn("Discarding implausible tracklog",
				logger.String("flight", group.Identity.String()))
			acc.Tracklog = flight.Opt[[]flight.TrackPoint]{}
			needRegistration = true
		}
	}
	if depth == DepthFull && !identityRequired(acc) {
		needRegistration = true
	}
	if needRegistration {
		acc.Merge(e.fetch(ctx, e.sources.Registration, group.Identity))
	}

	// Step 4: flight board as a last resort for precise times
	if depth == DepthFull && !timesRequired(acc) {
		acc.Merge(e.fetch(ctx, e.sources.FlightBoard, group.Identity))
	}

	// Step 5: nothing concrete means nothing to write
	if acc.ConcreteFields() == 0 {
		e.logger.Info("No data found for flight",
			logger.String("flight", group.Identity.String()))
		return nil
	}

	return e.applyToGroup(ctx, group, acc, nil, RouteReconcile)
}

// ApplyManualEdit applies a caller-supplied patch to a single flight row
// with a known actor, outside the scheduled cascade.
func (e *Engine) ApplyManualEdit(ctx context.Context, flightID int64, patch *flight.Patch, actorUserID int64) (*flight.Flight, error) {
	row, err := e.store.GetByID(flightID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("flight %d not found", flightID)
	}

	group := &flight.Group{Identity: row.Identity(), Flights: []*flight.Flight{row}}
	if err := e.applyToGroup(ctx, group, patch, &actorUserID, "manual-edit"); err != nil {
		return nil, err
	}

	return e.store.GetByID(flightID)
}

// applyToGroup writes one merged payload onto every row of a group in a
// single transaction, with one change commit per row that actually moved.
func (e *Engine) applyToGroup(ctx context.Context, group *flight.Group, acc *flight.Patch, actorUserID *int64, route string) error {
	var updated []*flight.Flight
	var commits []*audit.ChangeCommit
	entryCount := 0

	for _, row := range group.Flights {
		next := acc.Apply(row)
		recomputeDuration(next)
		trimTracklog(next)

		entries := audit.Diff(row, next)
		if len(entries) == 0 && !untrackedChanged(row, next) {
			continue
		}

		if len(entries) > 0 {
			commit := audit.NewCommit(row.ID, actorUserID, route, time.Now())
			commit.Entries = entries
			commits = append(commits, commit)
			entryCount += len(entries)
		}
		updated = append(updated, next)
	}

	if len(updated) == 0 {
		return nil
	}

	if err := e.store.ApplyGroupUpdate(updated, commits); err != nil {
		return fmt.Errorf("failed to apply update for %s: %w", group.Identity.String(), err)
	}

	if e.metrics != nil {
		e.metrics.ChangeEntriesTotal.Add(float64(entryCount))
	}

	e.logger.Info("Applied reconciled update",
		logger.String("flight", group.Identity.String()),
		logger.Int("rows", len(updated)),
		logger.Int("entries", entryCount))

	e.notify(updated)
	return nil
}

// notify fans the updated rows out to listeners without blocking the pass
func (e *Engine) notify(flights []*flight.Flight) {
	for _, l := range e.listeners {
		go func(l UpdateListener) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Update listener panicked",
						logger.Any("panic", r))
				}
			}()
			l.FlightsUpdated(context.Background(), flights)
		}(l)
	}
}

// fetch isolates one provider call. Any failure degrades that source to no
// data so the cascade can continue with whatever did respond.
func (e *Engine) fetch(ctx context.Context, adapter source.Adapter, id flight.Identity) *flight.Patch {
	if adapter == nil {
		return nil
	}

	p, err := adapter.Fetch(ctx, id)
	switch {
	case err == nil:
		e.countFetch(adapter.Name(), "ok")
		return p
	case errors.Is(err, source.ErrNotFound):
		e.countFetch(adapter.Name(), "not_found")
		e.logger.Debug("Source has no record of flight",
			logger.String("source", adapter.Name()),
			logger.String("flight", id.String()))
	default:
		e.countFetch(adapter.Name(), "error")
		e.logger.Warn("Source fetch failed",
			logger.String("source", adapter.Name()),
			logger.String("flight", id.String()),
			logger.Error(err))
	}
	return nil
}

func (e *Engine) countFetch(name, outcome string) {
	if e.metrics != nil {
		e.metrics.SourceFetchTotal.WithLabelValues(name, outcome).Inc()
	}
}

// recomputeDuration derives duration from the best-known out/in pair.
// Ill-ordered pairs leave it untouched.
func recomputeDuration(f *flight.Flight) {
	out := f.EffectiveOut()
	in := f.EffectiveIn()
	if out.IsZero() || in.IsZero() || in.Before(out) {
		return
	}
	minutes := int(in.Sub(out).Minutes())
	f.DurationMin = &minutes
}

// trimTracklog drops position samples outside the gate-to-gate window once
// both actual times are known. A five minute slack on each side keeps taxi
// samples reported slightly before pushback or after arrival.
func trimTracklog(f *flight.Flight) {
	if f.OutTimeActual == nil || f.InTimeActual == nil || len(f.Tracklog) == 0 {
		return
	}
	from := f.OutTimeActual.Add(-5 * time.Minute)
	to := f.InTimeActual.Add(5 * time.Minute)
	kept := make([]flight.TrackPoint, 0, len(f.Tracklog))
	for _, p := range f.Tracklog {
		if p.Timestamp.Before(from) || p.Timestamp.After(to) {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == len(f.Tracklog) {
		return
	}
	f.Tracklog = kept
}

func equalDuration(a, b *flight.Flight) bool {
	if (a.DurationMin == nil) != (b.DurationMin == nil) {
		return false
	}
	return a.DurationMin == nil || *a.DurationMin == *b.DurationMin
}

func equalStrPtr(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// untrackedChanged reports movement in persisted fields outside the audit
// enumeration, so a row still writes when only those moved.
func untrackedChanged(a, b *flight.Flight) bool {
	if !equalDuration(a, b) {
		return true
	}
	pairs := [][2]*string{
		{a.AirframeID, b.AirframeID},
		{a.DepartureGate, b.DepartureGate},
		{a.DepartureTerminal, b.DepartureTerminal},
		{a.ArrivalGate, b.ArrivalGate},
		{a.ArrivalTerminal, b.ArrivalTerminal},
		{a.BaggageClaim, b.BaggageClaim},
	}
	for _, p := range pairs {
		if !equalStrPtr(p[0], p[1]) {
			return true
		}
	}
	if len(a.Tracklog) != len(b.Tracklog) {
		return true
	}
	if n := len(a.Tracklog); n > 0 && !a.Tracklog[n-1].Timestamp.Equal(b.Tracklog[n-1].Timestamp) {
		return true
	}
	return false
}
