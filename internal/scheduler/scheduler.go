// Package scheduler drives the reconciliation cadence. Each tier runs its
// own ticker loop, selects the flights inside its windows, and hands the
// resulting groups to the engine through a bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/internal/reconcile"
	"github.com/skyfleet/flightsync/pkg/logger"
	"github.com/skyfleet/flightsync/pkg/metrics"
)

// CandidateStore is the persistence surface for tier selection
type CandidateStore interface {
	SelectCandidates(now time.Time, depFrom, depTo, arrFrom, arrTo time.Duration) ([]flight.Identity, error)
	GroupByIdentity(id flight.Identity) (*flight.Group, error)
}

// Engine reconciles one flight group
type Engine interface {
	ReconcileGroup(ctx context.Context, group *flight.Group, depth reconcile.Depth) error
}

// Scheduler owns one ticker loop per tier
type Scheduler struct {
	store   CandidateStore
	engine  Engine
	tiers   []Tier
	workers int
	clock   Clock
	metrics *metrics.Metrics
	logger  *logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. workers bounds how many flight groups
// reconcile concurrently within one tier pass; the scraped sources have no
// official rate-limit contract, so the pool stays small.
func NewScheduler(store CandidateStore, engine Engine, tiers []Tier, workers int, clock Clock, m *metrics.Metrics, log *logger.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		store:   store,
		engine:  engine,
		tiers:   tiers,
		workers: workers,
		clock:   clock,
		metrics: m,
		logger:  log.Named("scheduler"),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the tier loops
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.tiers) == 0 {
		return fmt.Errorf("no tiers configured")
	}

	s.logger.Info("Starting scheduler",
		logger.Int("tiers", len(s.tiers)),
		logger.Int("workers", s.workers))

	for _, tier := range s.tiers {
		s.wg.Add(1)
		go s.runTierLoop(ctx, tier)
	}

	return nil
}

// Stop shuts down every tier loop and waits for in-flight passes
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) runTierLoop(ctx context.Context, tier Tier) {
	defer s.wg.Done()

	ticker := time.NewTicker(tier.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunTier(ctx, tier)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunTier executes one pass of one tier: select, group, reconcile with
// bounded concurrency. A failing group is logged and skipped; the next
// tick is the retry.
func (s *Scheduler) RunTier(ctx context.Context, tier Tier) {
	now := s.clock.Now()

	candidates, err := s.store.SelectCandidates(now, tier.DepFrom, tier.DepTo, tier.ArrFrom, tier.ArrTo)
	if err != nil {
		s.logger.Error("Failed to select candidates",
			logger.String("tier", tier.Name),
			logger.Error(err))
		return
	}
	if len(candidates) == 0 {
		return
	}

	s.logger.Debug("Running tier pass",
		logger.String("tier", tier.Name),
		logger.Int("candidates", len(candidates)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, id := range candidates {
		id := id
		g.Go(func() error {
			s.reconcileOne(gctx, tier, id)
			// Group failures never abort the pass
			return nil
		})
	}
	g.Wait()

	if s.metrics != nil {
		s.metrics.PassesTotal.WithLabelValues(tier.Name).Inc()
	}
}

func (s *Scheduler) reconcileOne(ctx context.Context, tier Tier, id flight.Identity) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.countGroupError(tier)
			s.logger.Error("Panic while reconciling group",
				logger.String("tier", tier.Name),
				logger.String("flight", id.String()),
				logger.Any("panic", r))
		}
	}()

	group, err := s.store.GroupByIdentity(id)
	if err != nil {
		s.countGroupError(tier)
		s.logger.Error("Failed to load flight group",
			logger.String("tier", tier.Name),
			logger.String("flight", id.String()),
			logger.Error(err))
		return
	}

	if err := s.engine.ReconcileGroup(ctx, group, tier.Depth); err != nil {
		s.countGroupError(tier)
		s.logger.Error("Failed to reconcile group",
			logger.String("tier", tier.Name),
			logger.String("flight", id.String()),
			logger.Error(err))
		return
	}

	if s.metrics != nil {
		s.metrics.PassDuration.WithLabelValues(tier.Name).Observe(time.Since(start).Seconds())
	}
}

func (s *Scheduler) countGroupError(tier Tier) {
	if s.metrics != nil {
		s.metrics.GroupErrorsTotal.WithLabelValues(tier.Name).Inc()
	}
}
