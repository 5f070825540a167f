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

// FlightBoardAdapter queries the live flight-board provider, the last
// resort for precise scheduled/estimated times when everything above it in
// the cascade left gaps.
type FlightBoardAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// boardResponse is the provider's departures/arrivals board entry
type boardResponse struct {
	OutTimeScheduled field[string] `json:"out_time_scheduled"`
	OffTimeScheduled field[string] `json:"off_time_scheduled"`
	OnTimeScheduled  field[string] `json:"on_time_scheduled"`
	InTimeScheduled  field[string] `json:"in_time_scheduled"`
	OutTimeActual    field[string] `json:"out_time_actual"`
	OffTimeActual    field[string] `json:"off_time_actual"`
	OnTimeActual     field[string] `json:"on_time_actual"`
	InTimeActual     field[string] `json:"in_time_actual"`

	DepartureGate field[string] `json:"departure_gate"`
	ArrivalGate   field[string] `json:"arrival_gate"`
}

// NewFlightBoardAdapter creates a live flight-board provider adapter
func NewFlightBoardAdapter(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *FlightBoardAdapter {
	return &FlightBoardAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.Named("src-flightboard"),
	}
}

func (a *FlightBoardAdapter) Name() string { return "flightboard" }

// Fetch returns the board's times for the flight
func (a *FlightBoardAdapter) Fetch(ctx context.Context, id flight.Identity) (*flight.Patch, error) {
	q := url.Values{}
	q.Set("airline", id.Airline)
	q.Set("flight", id.Number)
	q.Set("date", id.LocalDate)
	q.Set("from", id.DepartureAirport)
	q.Set("to", id.ArrivalAirport)

	var resp boardResponse
	if err := getJSON(ctx, a.httpClient, a.logger, a.baseURL+"/v1/board?"+q.Encode(), a.apiKey, &resp); err != nil {
		return nil, err
	}

	p := &flight.Patch{
		DepartureGate: resp.DepartureGate.opt(),
		ArrivalGate:   resp.ArrivalGate.opt(),
	}

	times := []struct {
		name string
		src  field[string]
		dst  *flight.Opt[time.Time]
	}{
		{"out_time_scheduled", resp.OutTimeScheduled, &p.OutTimeScheduled},
		{"off_time_scheduled", resp.OffTimeScheduled, &p.OffTimeScheduled},
		{"on_time_scheduled", resp.OnTimeScheduled, &p.OnTimeScheduled},
		{"in_time_scheduled", resp.InTimeScheduled, &p.InTimeScheduled},
		{"out_time_actual", resp.OutTimeActual, &p.OutTimeActual},
		{"off_time_actual", resp.OffTimeActual, &p.OffTimeActual},
		{"on_time_actual", resp.OnTimeActual, &p.OnTimeActual},
		{"in_time_actual", resp.InTimeActual, &p.InTimeActual},
	}
	for _, t := range times {
		v, err := timeOpt(t.src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
		*t.dst = v
	}

	return p, nil
}
