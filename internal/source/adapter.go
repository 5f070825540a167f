package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/pkg/logger"
)

// ErrNotFound is returned when a provider definitively reports that it has
// no record of the requested flight. Distinct from transport/parse errors.
var ErrNotFound = errors.New("flight not found at source")

// Adapter is the normalized contract every provider is hidden behind. The
// reconciliation engine never sees provider-specific shapes.
type Adapter interface {
	// Name identifies the adapter in logs and metrics
	Name() string
	// Fetch returns a normalized partial update for the flight, ErrNotFound
	// when the provider has no record, or an error for anything else.
	Fetch(ctx context.Context, id flight.Identity) (*flight.Patch, error)
}

// AircraftLeg is one flight flown by a physical aircraft, as reported by
// the registration-lookup provider's history endpoint.
type AircraftLeg struct {
	Airline          string    `json:"airline"`
	Number           string    `json:"number"`
	DepartureAirport string    `json:"departure_airport"`
	ArrivalAirport   string    `json:"arrival_airport"`
	OutTimeScheduled time.Time `json:"out_time_scheduled"`
	InTimeScheduled  time.Time `json:"in_time_scheduled"`
	TailNumber       string    `json:"tail_number,omitempty"`
	AircraftType     string    `json:"aircraft_type,omitempty"`
}

// HistoryProvider is implemented by adapters that can report an aircraft's
// recent legs by airframe identity.
type HistoryProvider interface {
	History(ctx context.Context, airframeID string) ([]AircraftLeg, error)
}

// field is a tri-state JSON value: absent from the document, explicit null,
// or a concrete value. Providers use explicit null to assert "no value"
// (e.g., a diversion that was cleared); absence means "not determined".
type field[T any] struct {
	present bool
	null    bool
	value   T
}

// UnmarshalJSON is only invoked for keys present in the document, which is
// what distinguishes present-null from absent.
func (f *field[T]) UnmarshalJSON(b []byte) error {
	f.present = true
	if bytes.Equal(b, []byte("null")) {
		f.null = true
		return nil
	}
	return json.Unmarshal(b, &f.value)
}

// opt converts a wire field into the engine's three-state Opt
func (f field[T]) opt() flight.Opt[T] {
	switch {
	case !f.present:
		return flight.Opt[T]{}
	case f.null:
		return flight.NullVal[T]()
	default:
		return flight.SetVal(f.value)
	}
}

// timeOpt converts a tri-state RFC3339 string field into an Opt[time.Time]
func timeOpt(f field[string]) (flight.Opt[time.Time], error) {
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

// getJSON performs a GET against a provider endpoint and decodes the JSON
// response. A 404 maps to ErrNotFound; any other non-200 is an error.
func getJSON(ctx context.Context, client *http.Client, log *logger.Logger, url, apiKey string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	log.Debug("Fetching provider data", logger.String("url", url))

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
