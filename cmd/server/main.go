package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyfleet/flightsync/internal/airports"
	"github.com/skyfleet/flightsync/internal/api"
	"github.com/skyfleet/flightsync/internal/config"
	"github.com/skyfleet/flightsync/internal/propagate"
	"github.com/skyfleet/flightsync/internal/reconcile"
	"github.com/skyfleet/flightsync/internal/scheduler"
	"github.com/skyfleet/flightsync/internal/source"
	"github.com/skyfleet/flightsync/internal/stats"
	"github.com/skyfleet/flightsync/internal/storage/sqlite"
	"github.com/skyfleet/flightsync/internal/weather"
	"github.com/skyfleet/flightsync/internal/websocket"
	"github.com/skyfleet/flightsync/pkg/logger"
	"github.com/skyfleet/flightsync/pkg/metrics"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting FlightSync server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Airport reference catalog
	catalog, err := airports.LoadCatalog(cfg.Airports.DBPath, log)
	if err != nil {
		log.Error("Failed to load airport catalog", logger.Error(err))
		os.Exit(1)
	}

	// Storage
	db, err := sqlite.NewDatabase(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	flightStore := sqlite.NewFlightStore(db, log)
	changeStore := sqlite.NewChangeStore(db, log)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	// Source adapters, one per enabled provider
	sources := reconcile.Sources{}
	var registration *source.RegistrationAdapter
	if s := cfg.Sources.Schedule; s.Enabled {
		sources.Schedule = source.NewScheduleAdapter(s.BaseURL, s.APIKey, s.Timeout(), log)
	}
	if s := cfg.Sources.LiveTrackPrimary; s.Enabled {
		sources.LiveTrackPrimary = source.NewLiveTrackAdapter("livetrack-primary", s.BaseURL, s.APIKey, s.Timeout(), log)
	}
	if s := cfg.Sources.LiveTrackSecondary; s.Enabled {
		sources.LiveTrackSecondary = source.NewLiveTrackAdapter("livetrack-secondary", s.BaseURL, s.APIKey, s.Timeout(), log)
	}
	if s := cfg.Sources.Registration; s.Enabled {
		registration = source.NewRegistrationAdapter(s.BaseURL, s.APIKey, s.Timeout(), log)
		sources.Registration = registration
	}
	if s := cfg.Sources.FlightBoard; s.Enabled {
		sources.FlightBoard = source.NewFlightBoardAdapter(s.BaseURL, s.APIKey, s.Timeout(), log)
	}

	// Reconciliation engine
	validator := reconcile.NewValidator(catalog, log)
	engine := reconcile.NewEngine(flightStore, sources, validator, m, log)

	// Post-pass listeners
	wsServer := websocket.NewServer(log)
	go wsServer.Run()
	engine.AddListener(wsServer)

	statsService := stats.NewService(flightStore, 90, log)
	engine.AddListener(statsService)
	go func() {
		if err := statsService.Refresh(context.Background()); err != nil {
			log.Warn("Initial statistics refresh failed", logger.Error(err))
		}
	}()

	var weatherService *weather.Service
	if cfg.Weather.Enabled {
		weatherService = weather.NewService(weather.Config{
			APIBaseURL:      cfg.Weather.APIBaseURL,
			RefreshInterval: time.Duration(cfg.Weather.RefreshIntervalMinutes) * time.Minute,
			RequestTimeout:  time.Duration(cfg.Weather.RequestTimeoutSeconds) * time.Second,
			MaxRetries:      cfg.Weather.MaxRetries,
			CacheExpiry:     time.Duration(cfg.Weather.CacheExpiryMinutes) * time.Minute,
		}, log)
		if err := weatherService.Start(); err != nil {
			log.Error("Failed to start weather service", logger.Error(err))
			os.Exit(1)
		}
		engine.AddListener(weatherService)
	}

	if cfg.Propagation.Enabled {
		if registration == nil {
			log.Warn("Propagation enabled but registration source is not; shadow flights disabled")
		} else {
			propagator := propagate.New(flightStore, registration, catalog, cfg.Propagation.Lookback(), m, log)
			engine.AddListener(propagator)
		}
	}

	// Scheduler
	sched := scheduler.NewScheduler(flightStore, engine, buildTiers(cfg), cfg.Scheduler.Workers, scheduler.SystemClock(), m, log)
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	if err := sched.Start(schedCtx); err != nil {
		log.Error("Failed to start scheduler", logger.Error(err))
		os.Exit(1)
	}

	// HTTP API
	var statsProvider api.StatsProvider = statsService
	var weatherProvider api.WeatherProvider
	if weatherService != nil {
		weatherProvider = weatherService
	}
	handler := api.NewHandler(flightStore, changeStore, engine, statsProvider, weatherProvider, log)
	router := api.NewRouter(handler, wsServer.HandleConnection, cfg.Metrics.Enabled, cfg.Server.CORSAllowedOrigins, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	schedCancel()
	sched.Stop()
	log.Info("Scheduler stopped.")

	if weatherService != nil {
		weatherService.Stop()
		log.Info("Weather service stopped.")
	}

	wsServer.Stop()
	log.Info("WebSocket server stopped.")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server shutdown complete")
}

// buildTiers starts from the default ladder and applies any per-tier
// overrides from the config, matched by name.
func buildTiers(cfg *config.Config) []scheduler.Tier {
	tiers := scheduler.DefaultTiers()
	for _, override := range cfg.Scheduler.Tiers {
		for i := range tiers {
			if tiers[i].Name != override.Name {
				continue
			}
			tiers[i].Interval = time.Duration(override.IntervalSecs) * time.Second
			tiers[i].DepFrom = time.Duration(override.DepFromSecs) * time.Second
			tiers[i].DepTo = time.Duration(override.DepToSecs) * time.Second
			tiers[i].ArrFrom = time.Duration(override.ArrFromSecs) * time.Second
			tiers[i].ArrTo = time.Duration(override.ArrToSecs) * time.Second
		}
	}
	return tiers
}
