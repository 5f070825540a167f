package flight

import (
	"fmt"
	"strings"
	"time"
)

// TrackPoint is one sample of a flight's position trace
type TrackPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Altitude    float64   `json:"altitude"`     // Feet
	GroundSpeed float64   `json:"ground_speed"` // Knots
	OnGround    bool      `json:"on_ground"`
}

// Identity is the logical flight key used for deduplication and grouping.
// Many Flight rows with distinct UserID (including nil) can share one
// Identity; they represent the same physical flight as logged by different
// people and are updated together.
type Identity struct {
	Airline          string `json:"airline"`
	Number           string `json:"number"`
	LocalDate        string `json:"local_date"` // YYYY-MM-DD in the departure airport's timezone
	DepartureAirport string `json:"departure_airport"`
	ArrivalAirport   string `json:"arrival_airport"`
}

// Key returns the canonical string form of the identity
func (id Identity) Key() string {
	return strings.Join([]string{
		strings.ToUpper(id.Airline),
		id.Number,
		id.LocalDate,
		strings.ToUpper(id.DepartureAirport),
		strings.ToUpper(id.ArrivalAirport),
	}, "|")
}

func (id Identity) String() string {
	return fmt.Sprintf("%s%s/%s %s-%s", id.Airline, id.Number, id.LocalDate, id.DepartureAirport, id.ArrivalAirport)
}

// Valid reports whether the identity carries every component needed to
// query a provider page.
func (id Identity) Valid() bool {
	return id.Airline != "" && id.Number != "" && id.LocalDate != "" &&
		id.DepartureAirport != "" && id.ArrivalAirport != ""
}

// Flight is the central entity: one user's (or the system's) record of a
// physical flight. Corresponds to rows in the flights table.
type Flight struct {
	ID     int64  `json:"id"`
	UserID *int64 `json:"user_id"` // nil marks a shadow/reference row

	Airline          string  `json:"airline"`
	OperatingAirline *string `json:"operating_airline"`
	Number           string  `json:"number"`
	LocalDate        string  `json:"local_date"`

	DepartureAirport string  `json:"departure_airport"`
	ArrivalAirport   string  `json:"arrival_airport"`
	DiversionAirport *string `json:"diversion_airport"`

	// Scheduled/actual for each of out (gate departure), off (wheels up),
	// on (wheels down), in (gate arrival). Actuals fill in as the flight
	// progresses.
	OutTimeScheduled time.Time  `json:"out_time_scheduled"`
	OffTimeScheduled *time.Time `json:"off_time_scheduled"`
	OnTimeScheduled  *time.Time `json:"on_time_scheduled"`
	InTimeScheduled  time.Time  `json:"in_time_scheduled"`
	OutTimeActual    *time.Time `json:"out_time_actual"`
	OffTimeActual    *time.Time `json:"off_time_actual"`
	OnTimeActual     *time.Time `json:"on_time_actual"`
	InTimeActual     *time.Time `json:"in_time_actual"`

	AirframeID   *string `json:"airframe_id"` // Physical-aircraft identity key
	TailNumber   *string `json:"tail_number"`
	AircraftType *string `json:"aircraft_type"`

	DurationMin *int `json:"duration_min"` // Recomputed whenever out/in change

	DepartureGate     *string `json:"departure_gate"`
	DepartureTerminal *string `json:"departure_terminal"`
	ArrivalGate       *string `json:"arrival_gate"`
	ArrivalTerminal   *string `json:"arrival_terminal"`
	BaggageClaim      *string `json:"baggage_claim"`

	// User-owned annotation fields, only touched by manual edits
	Class        *string `json:"class"`
	SeatNumber   *string `json:"seat_number"`
	SeatPosition *string `json:"seat_position"`
	Reason       *string `json:"reason"`
	Comments     *string `json:"comments"`

	Tracklog []TrackPoint `json:"tracklog,omitempty"` // Time-ascending position samples

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity returns the logical flight key for this row
func (f *Flight) Identity() Identity {
	return Identity{
		Airline:          f.Airline,
		Number:           f.Number,
		LocalDate:        f.LocalDate,
		DepartureAirport: f.DepartureAirport,
		ArrivalAirport:   f.ArrivalAirport,
	}
}

// IsShadow reports whether this row is an unowned reference flight
// fabricated to show an aircraft's other recent activity.
func (f *Flight) IsShadow() bool {
	return f.UserID == nil
}

// EffectiveOut returns the actual gate departure time if known, otherwise scheduled
func (f *Flight) EffectiveOut() time.Time {
	if f.OutTimeActual != nil {
		return *f.OutTimeActual
	}
	return f.OutTimeScheduled
}

// EffectiveIn returns the actual gate arrival time if known, otherwise scheduled
func (f *Flight) EffectiveIn() time.Time {
	if f.InTimeActual != nil {
		return *f.InTimeActual
	}
	return f.InTimeScheduled
}

// Group is a set of Flight rows sharing one logical identity. A single
// external fetch serves every row in the group.
type Group struct {
	Identity Identity
	Flights  []*Flight
}

// HasOwner reports whether at least one row in the group belongs to a user
func (g *Group) HasOwner() bool {
	for _, f := range g.Flights {
		if !f.IsShadow() {
			return true
		}
	}
	return false
}
