// Package stats maintains on-time performance aggregates over completed
// flights. The snapshot is recomputed after reconciliation passes write
// new actual times; recompute failures are logged and the previous
// snapshot stays servable.
package stats

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/pkg/logger"
)

// onTimeThreshold is the arrival delay up to which a flight still counts
// as on time (the usual DOT A14 definition).
const onTimeThreshold = 15 * time.Minute

// FlightSource provides the completed rows the aggregates are built from
type FlightSource interface {
	SelectCompleted(since time.Time) ([]*flight.Flight, error)
}

// AirlineStats is the aggregate for one marketing airline
type AirlineStats struct {
	Airline          string  `json:"airline"`
	Flights          int     `json:"flights"`
	MeanDepartureMin float64 `json:"mean_departure_delay_min"`
	MeanArrivalMin   float64 `json:"mean_arrival_delay_min"`
	OnTimePercent    float64 `json:"on_time_percent"`
}

// RouteStats is the aggregate for one departure-arrival airport pair
type RouteStats struct {
	DepartureAirport string  `json:"departure_airport"`
	ArrivalAirport   string  `json:"arrival_airport"`
	Flights          int     `json:"flights"`
	MeanArrivalMin   float64 `json:"mean_arrival_delay_min"`
	OnTimePercent    float64 `json:"on_time_percent"`
}

// Snapshot is one full recomputation of the aggregates
type Snapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowDays  int            `json:"window_days"`
	Flights     int            `json:"flights"`
	Airlines    []AirlineStats `json:"airlines"`
	Routes      []RouteStats   `json:"routes"`
}

// Service recomputes and serves on-time statistics
type Service struct {
	source     FlightSource
	windowDays int
	logger     *logger.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewService creates a stats service over the given flight source
func NewService(source FlightSource, windowDays int, log *logger.Logger) *Service {
	if windowDays <= 0 {
		windowDays = 90
	}
	return &Service{
		source:     source,
		windowDays: windowDays,
		logger:     log.Named("stats"),
	}
}

// Snapshot returns the latest aggregates, or nil before the first
// successful recompute
func (s *Service) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// FlightsUpdated recomputes the aggregates after a pass wrote new state
func (s *Service) FlightsUpdated(ctx context.Context, flights []*flight.Flight) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Failed to refresh on-time statistics", logger.Error(err))
	}
}

// Refresh rebuilds the snapshot from the store
func (s *Service) Refresh(ctx context.Context) error {
	since := time.Now().UTC().AddDate(0, 0, -s.windowDays)
	completed, err := s.source.SelectCompleted(since)
	if err != nil {
		return fmt.Errorf("failed to load completed flights: %w", err)
	}

	snap := compute(completed, s.windowDays)

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	s.logger.Debug("On-time statistics refreshed",
		logger.Int("flights", snap.Flights),
		logger.Int("airlines", len(snap.Airlines)),
		logger.Int("routes", len(snap.Routes)))
	return nil
}

type accumulator struct {
	flights  int
	depDelay time.Duration
	arrDelay time.Duration
	onTime   int
}

func (a *accumulator) add(dep, arr time.Duration) {
	a.flights++
	a.depDelay += dep
	a.arrDelay += arr
	if arr <= onTimeThreshold {
		a.onTime++
	}
}

type routeKey struct {
	dep, arr string
}

func compute(completed []*flight.Flight, windowDays int) *Snapshot {
	byAirline := make(map[string]*accumulator)
	byRoute := make(map[routeKey]*accumulator)

	counted := 0
	for _, f := range completed {
		if f.OutTimeActual == nil || f.InTimeActual == nil {
			continue
		}
		depDelay := f.OutTimeActual.Sub(f.OutTimeScheduled)
		arrDelay := f.InTimeActual.Sub(f.InTimeScheduled)
		counted++

		acc := byAirline[f.Airline]
		if acc == nil {
			acc = &accumulator{}
			byAirline[f.Airline] = acc
		}
		acc.add(depDelay, arrDelay)

		key := routeKey{dep: f.DepartureAirport, arr: f.ArrivalAirport}
		acc = byRoute[key]
		if acc == nil {
			acc = &accumulator{}
			byRoute[key] = acc
		}
		acc.add(depDelay, arrDelay)
	}

	snap := &Snapshot{
		GeneratedAt: time.Now().UTC(),
		WindowDays:  windowDays,
		Flights:     counted,
	}

	for airline, acc := range byAirline {
		snap.Airlines = append(snap.Airlines, AirlineStats{
			Airline:          airline,
			Flights:          acc.flights,
			MeanDepartureMin: meanMinutes(acc.depDelay, acc.flights),
			MeanArrivalMin:   meanMinutes(acc.arrDelay, acc.flights),
			OnTimePercent:    percent(acc.onTime, acc.flights),
		})
	}
	sort.Slice(snap.Airlines, func(i, j int) bool {
		return snap.Airlines[i].Airline < snap.Airlines[j].Airline
	})

	for key, acc := range byRoute {
		snap.Routes = append(snap.Routes, RouteStats{
			DepartureAirport: key.dep,
			ArrivalAirport:   key.arr,
			Flights:          acc.flights,
			MeanArrivalMin:   meanMinutes(acc.arrDelay, acc.flights),
			OnTimePercent:    percent(acc.onTime, acc.flights),
		})
	}
	sort.Slice(snap.Routes, func(i, j int) bool {
		if snap.Routes[i].DepartureAirport != snap.Routes[j].DepartureAirport {
			return snap.Routes[i].DepartureAirport < snap.Routes[j].DepartureAirport
		}
		return snap.Routes[i].ArrivalAirport < snap.Routes[j].ArrivalAirport
	})

	return snap
}

func meanMinutes(total time.Duration, n int) float64 {
	if n == 0 {
		return 0
	}
	return total.Minutes() / float64(n)
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}
