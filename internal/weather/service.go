package weather

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/pkg/logger"
)

// Service manages METAR fetching and caching for tracked airports.
// Airports enter the tracked set when a reconciliation pass touches a
// flight that references them; reports are then kept fresh in the
// background until the service stops.
type Service struct {
	config Config
	client *Client
	cache  *gocache.Cache
	logger *logger.Logger

	mu      sync.Mutex
	tracked map[string]struct{}

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewService creates a new weather service
func NewService(config Config, log *logger.Logger) *Service {
	return &Service{
		config:  config,
		client:  NewClient(config, log),
		cache:   gocache.New(config.CacheExpiry, 2*config.CacheExpiry),
		logger:  log.Named("weather-service"),
		tracked: make(map[string]struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the background refresh loop
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info("Starting weather service",
		logger.String("refresh_interval", s.config.RefreshInterval.String()))

	s.wg.Add(1)
	go s.refreshLoop()

	s.started = true
	return nil
}

// Stop gracefully shuts down the weather service
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Weather service stopped")
	return nil
}

// Get returns the cached METAR for an airport, if one is held
func (s *Service) Get(airportCode string) (*METAR, bool) {
	v, ok := s.cache.Get(normalizeCode(airportCode))
	if !ok {
		return nil, false
	}
	return v.(*METAR), true
}

// TrackedAirports returns the airports currently kept fresh
func (s *Service) TrackedAirports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make([]string, 0, len(s.tracked))
	for code := range s.tracked {
		codes = append(codes, code)
	}
	return codes
}

// FlightsUpdated adds the airports of freshly written flights to the
// tracked set and fetches any that have no cached report yet
func (s *Service) FlightsUpdated(ctx context.Context, flights []*flight.Flight) {
	var fresh []string

	s.mu.Lock()
	for _, f := range flights {
		for _, code := range []string{f.DepartureAirport, f.ArrivalAirport} {
			code = normalizeCode(code)
			if code == "" {
				continue
			}
			if _, ok := s.tracked[code]; !ok {
				s.tracked[code] = struct{}{}
				fresh = append(fresh, code)
			}
		}
	}
	s.mu.Unlock()

	for _, code := range fresh {
		s.refreshAirport(ctx, code)
	}
}

// refreshLoop periodically re-fetches every tracked airport
func (s *Service) refreshLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			for _, code := range s.TrackedAirports() {
				select {
				case <-s.stopCh:
					return
				default:
				}
				s.refreshAirport(context.Background(), code)
			}
		}
	}
}

func (s *Service) refreshAirport(ctx context.Context, code string) {
	metar, err := s.client.FetchMETAR(ctx, code)
	if err != nil {
		// Keep serving the previous report until it expires on its own.
		s.logger.Warn("Failed to refresh METAR",
			logger.String("airport", code),
			logger.Error(err))
		return
	}

	s.cache.Set(code, metar, gocache.DefaultExpiration)
	s.logger.Debug("METAR refreshed",
		logger.String("airport", code),
		logger.String("category", metar.FlightCategory))
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
