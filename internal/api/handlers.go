// Package api exposes the HTTP read surface and the manual-edit endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skyfleet/flightsync/internal/audit"
	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/internal/stats"
	"github.com/skyfleet/flightsync/internal/weather"
	"github.com/skyfleet/flightsync/pkg/logger"
)

// FlightReader is the read access handlers need over flight rows
type FlightReader interface {
	GetByID(id int64) (*flight.Flight, error)
	List(userID *int64, limit, offset int) ([]*flight.Flight, error)
}

// ChangeReader lists the change history of one flight
type ChangeReader interface {
	ListByFlight(flightID int64) ([]*audit.ChangeCommit, error)
}

// Editor applies a manual edit outside the scheduled cascade
type Editor interface {
	ApplyManualEdit(ctx context.Context, flightID int64, patch *flight.Patch, actorUserID int64) (*flight.Flight, error)
}

// StatsProvider serves the latest on-time snapshot
type StatsProvider interface {
	Snapshot() *stats.Snapshot
}

// WeatherProvider serves cached METARs by airport code
type WeatherProvider interface {
	Get(airportCode string) (*weather.METAR, bool)
}

// Handler contains the API handlers
type Handler struct {
	flights FlightReader
	changes ChangeReader
	editor  Editor
	stats   StatsProvider
	weather WeatherProvider
	logger  *logger.Logger
}

// NewHandler creates a new API handler. stats and weather may be nil when
// those subsystems are disabled.
func NewHandler(flights FlightReader, changes ChangeReader, editor Editor, statsProvider StatsProvider, weatherProvider WeatherProvider, log *logger.Logger) *Handler {
	return &Handler{
		flights: flights,
		changes: changes,
		editor:  editor,
		stats:   statsProvider,
		weather: weatherProvider,
		logger:  log.Named("api-handler"),
	}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ListFlights returns flight rows, optionally filtered by owner
func (h *Handler) ListFlights(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	var userID *int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid user_id", http.StatusBadRequest)
			return
		}
		userID = &id
	}

	flights, err := h.flights.List(userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list flights", logger.Error(err))
		http.Error(w, "Failed to list flights", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, struct {
		Flights []*flight.Flight `json:"flights"`
		Count   int              `json:"count"`
	}{Flights: flights, Count: len(flights)})
}

// GetFlight returns one flight row
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	id, ok := flightID(w, r)
	if !ok {
		return
	}

	f, err := h.flights.GetByID(id)
	if err != nil {
		h.logger.Error("Failed to get flight", logger.Int64("id", id), logger.Error(err))
		http.Error(w, "Failed to get flight", http.StatusInternalServerError)
		return
	}
	if f == nil {
		http.Error(w, "Flight not found", http.StatusNotFound)
		return
	}

	WriteJSON(w, http.StatusOK, f)
}

// GetFlightChanges returns the change history of one flight, newest first
func (h *Handler) GetFlightChanges(w http.ResponseWriter, r *http.Request) {
	id, ok := flightID(w, r)
	if !ok {
		return
	}

	f, err := h.flights.GetByID(id)
	if err != nil {
		http.Error(w, "Failed to get flight", http.StatusInternalServerError)
		return
	}
	if f == nil {
		http.Error(w, "Flight not found", http.StatusNotFound)
		return
	}

	commits, err := h.changes.ListByFlight(id)
	if err != nil {
		h.logger.Error("Failed to list changes", logger.Int64("id", id), logger.Error(err))
		http.Error(w, "Failed to list changes", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, struct {
		FlightID int64                 `json:"flight_id"`
		Commits  []*audit.ChangeCommit `json:"commits"`
	}{FlightID: id, Commits: commits})
}

// EditFlight applies a manual edit to one flight with a known actor
func (h *Handler) EditFlight(w http.ResponseWriter, r *http.Request) {
	id, ok := flightID(w, r)
	if !ok {
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ActorUserID <= 0 {
		http.Error(w, "actor_user_id is required", http.StatusBadRequest)
		return
	}

	patch, err := req.patch()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if patch.ConcreteFields() == 0 {
		http.Error(w, "Edit carries no fields", http.StatusBadRequest)
		return
	}

	f, err := h.flights.GetByID(id)
	if err != nil {
		http.Error(w, "Failed to get flight", http.StatusInternalServerError)
		return
	}
	if f == nil {
		http.Error(w, "Flight not found", http.StatusNotFound)
		return
	}

	updated, err := h.editor.ApplyManualEdit(r.Context(), id, patch, req.ActorUserID)
	if err != nil {
		h.logger.Error("Failed to apply manual edit",
			logger.Int64("id", id),
			logger.Int64("actor", req.ActorUserID),
			logger.Error(err))
		http.Error(w, "Failed to apply edit", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, updated)
}

// GetOnTimeStats returns the latest on-time aggregates
func (h *Handler) GetOnTimeStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		http.Error(w, "Statistics not available", http.StatusServiceUnavailable)
		return
	}
	snap := h.stats.Snapshot()
	if snap == nil {
		http.Error(w, "Statistics not computed yet", http.StatusServiceUnavailable)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// GetWeather returns the cached METAR for one airport
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	if h.weather == nil {
		http.Error(w, "Weather not available", http.StatusServiceUnavailable)
		return
	}

	code := chi.URLParam(r, "airport")
	if code == "" {
		http.Error(w, "Missing airport code", http.StatusBadRequest)
		return
	}

	metar, ok := h.weather.Get(code)
	if !ok {
		http.Error(w, "No weather report for airport", http.StatusNotFound)
		return
	}

	WriteJSON(w, http.StatusOK, metar)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, struct {
		Status string    `json:"status"`
		Time   time.Time `json:"time"`
	}{Status: "ok", Time: time.Now().UTC()})
}

func flightID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid flight ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// editField is a tri-state JSON value: absent, explicit null, or concrete.
// Absent fields are left alone; explicit null clears nullable fields.
type editField[T any] struct {
	present bool
	null    bool
	value   T
}

func (f *editField[T]) UnmarshalJSON(b []byte) error {
	f.present = true
	if bytes.Equal(b, []byte("null")) {
		f.null = true
		return nil
	}
	return json.Unmarshal(b, &f.value)
}

func (f editField[T]) opt() flight.Opt[T] {
	switch {
	case !f.present:
		return flight.Opt[T]{}
	case f.null:
		return flight.NullVal[T]()
	default:
		return flight.SetVal(f.value)
	}
}

// editRequest is the manual-edit body. Only user-editable fields are
// accepted; identity and tracklog stay under reconciliation control.
type editRequest struct {
	ActorUserID int64 `json:"actor_user_id"`

	DiversionAirport editField[string] `json:"diversion_airport"`

	OutTimeScheduled editField[string] `json:"out_time_scheduled"`
	OffTimeScheduled editField[string] `json:"off_time_scheduled"`
	OnTimeScheduled  editField[string] `json:"on_time_scheduled"`
	InTimeScheduled  editField[string] `json:"in_time_scheduled"`
	OutTimeActual    editField[string] `json:"out_time_actual"`
	OffTimeActual    editField[string] `json:"off_time_actual"`
	OnTimeActual     editField[string] `json:"on_time_actual"`
	InTimeActual     editField[string] `json:"in_time_actual"`

	TailNumber   editField[string] `json:"tail_number"`
	AircraftType editField[string] `json:"aircraft_type"`

	DepartureGate     editField[string] `json:"departure_gate"`
	DepartureTerminal editField[string] `json:"departure_terminal"`
	ArrivalGate       editField[string] `json:"arrival_gate"`
	ArrivalTerminal   editField[string] `json:"arrival_terminal"`
	BaggageClaim      editField[string] `json:"baggage_claim"`

	Class        editField[string] `json:"class"`
	SeatNumber   editField[string] `json:"seat_number"`
	SeatPosition editField[string] `json:"seat_position"`
	Reason       editField[string] `json:"reason"`
	Comments     editField[string] `json:"comments"`
}

func (req *editRequest) patch() (*flight.Patch, error) {
	p := &flight.Patch{
		DiversionAirport:  req.DiversionAirport.opt(),
		TailNumber:        req.TailNumber.opt(),
		AircraftType:      req.AircraftType.opt(),
		DepartureGate:     req.DepartureGate.opt(),
		DepartureTerminal: req.DepartureTerminal.opt(),
		ArrivalGate:       req.ArrivalGate.opt(),
		ArrivalTerminal:   req.ArrivalTerminal.opt(),
		BaggageClaim:      req.BaggageClaim.opt(),
		Class:             req.Class.opt(),
		SeatNumber:        req.SeatNumber.opt(),
		SeatPosition:      req.SeatPosition.opt(),
		Reason:            req.Reason.opt(),
		Comments:          req.Comments.opt(),
	}

	times := []struct {
		src editField[string]
		dst *flight.Opt[time.Time]
	}{
		{req.OutTimeScheduled, &p.OutTimeScheduled},
		{req.OffTimeScheduled, &p.OffTimeScheduled},
		{req.OnTimeScheduled, &p.OnTimeScheduled},
		{req.InTimeScheduled, &p.InTimeScheduled},
		{req.OutTimeActual, &p.OutTimeActual},
		{req.OffTimeActual, &p.OffTimeActual},
		{req.OnTimeActual, &p.OnTimeActual},
		{req.InTimeActual, &p.InTimeActual},
	}
	for _, t := range times {
		opt, err := timeOpt(t.src)
		if err != nil {
			return nil, err
		}
		*t.dst = opt
	}

	return p, nil
}

// timeOpt converts a tri-state RFC3339 string into an Opt[time.Time]
func timeOpt(f editField[string]) (flight.Opt[time.Time], error) {
	switch {
	case !f.present:
		return flight.Opt[time.Time]{}, nil
	case f.null:
		return flight.NullVal[time.Time](), nil
	}
	t, err := time.Parse(time.RFC3339, f.value)
	if err != nil {
		return flight.Opt[time.Time]{}, fmt.Errorf("invalid timestamp %q: %w", f.value, err)
	}
	return flight.SetVal(t), nil
}
