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

// ScheduleAdapter queries the scheduled-times provider. Generally the
// cheapest and most complete source for pre-flight data, so the cascade
// always asks it first.
type ScheduleAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// scheduleResponse is the provider's normalized schedule document
type scheduleResponse struct {
	Airline          field[string] `json:"airline"`
	OperatingAirline field[string] `json:"operating_airline"`
	Number           field[string] `json:"number"`

	DepartureAirport field[string] `json:"departure_airport"`
	ArrivalAirport   field[string] `json:"arrival_airport"`
	DiversionAirport field[string] `json:"diversion_airport"`

	OutTimeScheduled field[string] `json:"out_time_scheduled"`
	InTimeScheduled  field[string] `json:"in_time_scheduled"`
	OutTimeActual    field[string] `json:"out_time_actual"`
	InTimeActual     field[string] `json:"in_time_actual"`

	AircraftType field[string] `json:"aircraft_type"`

	DepartureGate     field[string] `json:"departure_gate"`
	DepartureTerminal field[string] `json:"departure_terminal"`
	ArrivalGate       field[string] `json:"arrival_gate"`
	ArrivalTerminal   field[string] `json:"arrival_terminal"`
	BaggageClaim      field[string] `json:"baggage_claim"`
}

// NewScheduleAdapter creates a scheduled-times provider adapter
func NewScheduleAdapter(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *ScheduleAdapter {
	return &ScheduleAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.Named("src-schedule"),
	}
}

func (a *ScheduleAdapter) Name() string { return "schedule" }

// Fetch returns scheduled times, gates, and airline metadata for the flight
func (a *ScheduleAdapter) Fetch(ctx context.Context, id flight.Identity) (*flight.Patch, error) {
	q := url.Values{}
	q.Set("airline", id.Airline)
	q.Set("flight", id.Number)
	q.Set("date", id.LocalDate)
	q.Set("from", id.DepartureAirport)
	q.Set("to", id.ArrivalAirport)

	var resp scheduleResponse
	if err := getJSON(ctx, a.httpClient, a.logger, a.baseURL+"/v1/schedule?"+q.Encode(), a.apiKey, &resp); err != nil {
		return nil, err
	}

	return resp.toPatch()
}

func (r *scheduleResponse) toPatch() (*flight.Patch, error) {
	p := &flight.Patch{
		Airline:          r.Airline.opt(),
		OperatingAirline: r.OperatingAirline.opt(),
		Number:           r.Number.opt(),

		DepartureAirport: r.DepartureAirport.opt(),
		ArrivalAirport:   r.ArrivalAirport.opt(),
		DiversionAirport: r.DiversionAirport.opt(),

		AircraftType: r.AircraftType.opt(),

		DepartureGate:     r.DepartureGate.opt(),
		DepartureTerminal: r.DepartureTerminal.opt(),
		ArrivalGate:       r.ArrivalGate.opt(),
		ArrivalTerminal:   r.ArrivalTerminal.opt(),
		BaggageClaim:      r.BaggageClaim.opt(),
	}

	var err error
	if p.OutTimeScheduled, err = timeOpt(r.OutTimeScheduled); err != nil {
		return nil, fmt.Errorf("out_time_scheduled: %w", err)
	}
	if p.InTimeScheduled, err = timeOpt(r.InTimeScheduled); err != nil {
		return nil, fmt.Errorf("in_time_scheduled: %w", err)
	}
	if p.OutTimeActual, err = timeOpt(r.OutTimeActual); err != nil {
		return nil, fmt.Errorf("out_time_actual: %w", err)
	}
	if p.InTimeActual, err = timeOpt(r.InTimeActual); err != nil {
		return nil, fmt.Errorf("in_time_actual: %w", err)
	}

	return p, nil
}
