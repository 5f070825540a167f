package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/pkg/logger"
)

// RegistrationAdapter queries the registration-history provider, the
// authority on aircraft identity (airframe, tail number, type). It is the
// most rate-limited source, so the cascade only reaches it when identity
// fields are still missing or the tracklog failed validation. It also
// serves the aircraft-history lookups behind shadow flight rows.
type RegistrationAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// registrationResponse is the provider's aircraft identity document
type registrationResponse struct {
	AirframeID   field[string] `json:"airframe_id"`
	TailNumber   field[string] `json:"tail_number"`
	AircraftType field[string] `json:"aircraft_type"`

	// The provider's own notion of the flight's latest movement times,
	// sometimes fresher than the schedule source for in-progress flights.
	OffTimeActual field[string] `json:"off_time_actual"`
	OnTimeActual  field[string] `json:"on_time_actual"`
}

// historyResponse is the provider's aircraft activity document
type historyResponse struct {
	Legs []AircraftLeg `json:"legs"`
}

// NewRegistrationAdapter creates a registration-history provider adapter
func NewRegistrationAdapter(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *RegistrationAdapter {
	return &RegistrationAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.Named("src-registration"),
	}
}

func (a *RegistrationAdapter) Name() string { return "registration" }

// Fetch returns aircraft identity fields for the flight
func (a *RegistrationAdapter) Fetch(ctx context.Context, id flight.Identity) (*flight.Patch, error) {
	q := url.Values{}
	q.Set("airline", id.Airline)
	q.Set("flight", id.Number)
	q.Set("date", id.LocalDate)
	q.Set("from", id.DepartureAirport)
	q.Set("to", id.ArrivalAirport)

	var resp registrationResponse
	if err := getJSON(ctx, a.httpClient, a.logger, a.baseURL+"/v1/registration?"+q.Encode(), a.apiKey, &resp); err != nil {
		return nil, err
	}

	p := &flight.Patch{
		AirframeID:   resp.AirframeID.opt(),
		TailNumber:   resp.TailNumber.opt(),
		AircraftType: resp.AircraftType.opt(),
	}

	var err error
	if p.OffTimeActual, err = timeOpt(resp.OffTimeActual); err != nil {
		return nil, fmt.Errorf("off_time_actual: %w", err)
	}
	if p.OnTimeActual, err = timeOpt(resp.OnTimeActual); err != nil {
		return nil, fmt.Errorf("on_time_actual: %w", err)
	}

	return p, nil
}

// History returns the aircraft's recent legs, newest first as delivered by
// the provider. Callers filter by window.
func (a *RegistrationAdapter) History(ctx context.Context, airframeID string) ([]AircraftLeg, error) {
	u := fmt.Sprintf("%s/v1/aircraft/%s/history", a.baseURL, url.PathEscape(airframeID))

	var resp historyResponse
	if err := getJSON(ctx, a.httpClient, a.logger, u, a.apiKey, &resp); err != nil {
		return nil, err
	}

	return resp.Legs, nil
}
