package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skyfleet/flightsync/pkg/logger"
)

// Router builds the HTTP routing table
type Router struct {
	handler        *Handler
	wsHandler      http.HandlerFunc
	metricsEnabled bool
	allowedOrigins []string
	logger         *logger.Logger
}

// NewRouter creates the API router. wsHandler may be nil when the update
// feed is disabled.
func NewRouter(handler *Handler, wsHandler http.HandlerFunc, metricsEnabled bool, allowedOrigins []string, log *logger.Logger) *Router {
	return &Router{
		handler:        handler,
		wsHandler:      wsHandler,
		metricsEnabled: metricsEnabled,
		allowedOrigins: allowedOrigins,
		logger:         log.Named("api-router"),
	}
}

// Routes returns the assembled handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(rt.cors)

	r.Get("/health", rt.handler.Health)

	r.Route("/flights", func(r chi.Router) {
		r.Get("/", rt.handler.ListFlights)
		r.Get("/{id}", rt.handler.GetFlight)
		r.Get("/{id}/changes", rt.handler.GetFlightChanges)
		r.Post("/{id}/edits", rt.handler.EditFlight)
	})

	r.Get("/stats/ontime", rt.handler.GetOnTimeStats)
	r.Get("/weather/{airport}", rt.handler.GetWeather)

	if rt.wsHandler != nil {
		r.Get("/ws", rt.wsHandler)
	}

	if rt.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// cors applies the configured allowed origins
func (rt *Router) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && rt.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rt *Router) originAllowed(origin string) bool {
	for _, allowed := range rt.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
