package reconcile

import (
	"github.com/skyfleet/flightsync/internal/airports"
	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/internal/geo"
	"github.com/skyfleet/flightsync/pkg/logger"
)

// routeDistanceFactor bounds how far off-route the newest tracklog sample
// may sit before the trace is considered misattributed.
const routeDistanceFactor = 1.5

// Validator detects tracklogs attributed to the wrong aircraft. Position
// providers reuse identifiers, so a trace can belong to a different flight
// entirely; such a trace sits nowhere near the expected route.
type Validator struct {
	airports *airports.Catalog
	logger   *logger.Logger
}

// NewValidator creates a tracklog validator
func NewValidator(catalog *airports.Catalog, log *logger.Logger) *Validator {
	return &Validator{
		airports: catalog,
		logger:   log.Named("validator"),
	}
}

// Plausible reports whether a tracklog could belong to a flight between the
// given airports. The newest sample must lie within 1.5x the route's
// great-circle distance of at least one endpoint. An empty trace or an
// unresolvable airport gives no basis to reject and passes.
func (v *Validator) Plausible(track []flight.TrackPoint, departure, arrival string) bool {
	if len(track) == 0 {
		return true
	}

	dep, ok := v.airports.Get(departure)
	if !ok {
		v.logger.Debug("Cannot validate tracklog, unknown departure airport",
			logger.String("airport", departure))
		return true
	}
	arr, ok := v.airports.Get(arrival)
	if !ok {
		v.logger.Debug("Cannot validate tracklog, unknown arrival airport",
			logger.String("airport", arrival))
		return true
	}

	routeDist := geo.Haversine(dep.Latitude, dep.Longitude, arr.Latitude, arr.Longitude)
	if routeDist <= 0 {
		return true
	}

	last := track[len(track)-1]
	fromDep := geo.Haversine(dep.Latitude, dep.Longitude, last.Lat, last.Lon)
	fromArr := geo.Haversine(arr.Latitude, arr.Longitude, last.Lat, last.Lon)

	limit := routeDist * routeDistanceFactor
	if fromDep > limit && fromArr > limit {
		v.logger.Warn("Tracklog implausible for route",
			logger.String("departure", departure),
			logger.String("arrival", arrival),
			logger.Float64("route_km", routeDist/1000),
			logger.Float64("from_departure_km", fromDep/1000),
			logger.Float64("from_arrival_km", fromArr/1000))
		return false
	}

	return true
}
