package flight

import (
	"time"
)

// OptState is the three-state marker carried by every Patch field
type OptState uint8

const (
	// Unset means the source did not determine this field. Only Unset
	// fields are eligible to be filled by a lower-priority source.
	Unset OptState = iota
	// Null means the source asserts the field has no value (e.g., a
	// diversion was cleared). Null is a concrete answer, not a gap.
	Null
	// Set means the source supplied a concrete value
	Set
)

// Opt is a three-state optional value. The zero value is Unset.
type Opt[T any] struct {
	state OptState
	value T
}

// SetVal returns a concrete Opt
func SetVal[T any](v T) Opt[T] {
	return Opt[T]{state: Set, value: v}
}

// NullVal returns an explicit-null Opt
func NullVal[T any]() Opt[T] {
	return Opt[T]{state: Null}
}

func (o Opt[T]) State() OptState { return o.state }
func (o Opt[T]) IsSet() bool     { return o.state == Set }
func (o Opt[T]) IsNull() bool    { return o.state == Null }
func (o Opt[T]) IsUnset() bool   { return o.state == Unset }

// Value returns the concrete value and whether one is present
func (o Opt[T]) Value() (T, bool) {
	return o.value, o.state == Set
}

// fill sets dst from src only when dst is Unset
func fill[T any](dst *Opt[T], src Opt[T]) {
	if dst.state == Unset && src.state != Unset {
		*dst = src
	}
}

// Patch is the normalized partial update returned by a source adapter and
// accumulated across the reconciliation cascade. Each field is three-state:
// unset (no opinion), explicit null, or a concrete value.
type Patch struct {
	Airline          Opt[string]
	OperatingAirline Opt[string]
	Number           Opt[string]

	DepartureAirport Opt[string]
	ArrivalAirport   Opt[string]
	DiversionAirport Opt[string]

	OutTimeScheduled Opt[time.Time]
	OffTimeScheduled Opt[time.Time]
	OnTimeScheduled  Opt[time.Time]
	InTimeScheduled  Opt[time.Time]
	OutTimeActual    Opt[time.Time]
	OffTimeActual    Opt[time.Time]
	OnTimeActual     Opt[time.Time]
	InTimeActual     Opt[time.Time]

	AirframeID   Opt[string]
	TailNumber   Opt[string]
	AircraftType Opt[string]

	DurationMin Opt[int]

	DepartureGate     Opt[string]
	DepartureTerminal Opt[string]
	ArrivalGate       Opt[string]
	ArrivalTerminal   Opt[string]
	BaggageClaim      Opt[string]

	Class        Opt[string]
	SeatNumber   Opt[string]
	SeatPosition Opt[string]
	Reason       Opt[string]
	Comments     Opt[string]

	Tracklog Opt[[]TrackPoint]
}

// Merge fills p's Unset fields from src. Fields p already answered (Set or
// Null) are never overwritten; a later, lower-priority source can only fill
// gaps.
func (p *Patch) Merge(src *Patch) {
	if src == nil {
		return
	}

	fill(&p.Airline, src.Airline)
	fill(&p.OperatingAirline, src.OperatingAirline)
	fill(&p.Number, src.Number)

	fill(&p.DepartureAirport, src.DepartureAirport)
	fill(&p.ArrivalAirport, src.ArrivalAirport)
	fill(&p.DiversionAirport, src.DiversionAirport)

	fill(&p.OutTimeScheduled, src.OutTimeScheduled)
	fill(&p.OffTimeScheduled, src.OffTimeScheduled)
	fill(&p.OnTimeScheduled, src.OnTimeScheduled)
	fill(&p.InTimeScheduled, src.InTimeScheduled)
	fill(&p.OutTimeActual, src.OutTimeActual)
	fill(&p.OffTimeActual, src.OffTimeActual)
	fill(&p.OnTimeActual, src.OnTimeActual)
	fill(&p.InTimeActual, src.InTimeActual)

	fill(&p.AirframeID, src.AirframeID)
	fill(&p.TailNumber, src.TailNumber)
	fill(&p.AircraftType, src.AircraftType)

	fill(&p.DurationMin, src.DurationMin)

	fill(&p.DepartureGate, src.DepartureGate)
	fill(&p.DepartureTerminal, src.DepartureTerminal)
	fill(&p.ArrivalGate, src.ArrivalGate)
	fill(&p.ArrivalTerminal, src.ArrivalTerminal)
	fill(&p.BaggageClaim, src.BaggageClaim)

	fill(&p.Class, src.Class)
	fill(&p.SeatNumber, src.SeatNumber)
	fill(&p.SeatPosition, src.SeatPosition)
	fill(&p.Reason, src.Reason)
	fill(&p.Comments, src.Comments)

	fill(&p.Tracklog, src.Tracklog)
}

// ConcreteFields returns the number of fields carrying an answer (Set or
// explicit Null). Zero means no source found any data and no write occurs.
func (p *Patch) ConcreteFields() int {
	n := 0
	for _, s := range p.states() {
		if s != Unset {
			n++
		}
	}
	return n
}

func (p *Patch) states() []OptState {
	return []OptState{
		p.Airline.state, p.OperatingAirline.state, p.Number.state,
		p.DepartureAirport.state, p.ArrivalAirport.state, p.DiversionAirport.state,
		p.OutTimeScheduled.state, p.OffTimeScheduled.state, p.OnTimeScheduled.state, p.InTimeScheduled.state,
		p.OutTimeActual.state, p.OffTimeActual.state, p.OnTimeActual.state, p.InTimeActual.state,
		p.AirframeID.state, p.TailNumber.state, p.AircraftType.state,
		p.DurationMin.state,
		p.DepartureGate.state, p.DepartureTerminal.state, p.ArrivalGate.state, p.ArrivalTerminal.state, p.BaggageClaim.state,
		p.Class.state, p.SeatNumber.state, p.SeatPosition.state, p.Reason.state, p.Comments.state,
		p.Tracklog.state,
	}
}

// applyString applies an Opt to a non-nullable string field. Explicit null
// is ignored; these fields cannot be cleared.
func applyString(dst *string, o Opt[string]) {
	if v, ok := o.Value(); ok {
		*dst = v
	}
}

// applyPtr applies an Opt to a nullable field. Explicit null clears it.
func applyPtr[T any](dst **T, o Opt[T]) {
	switch o.state {
	case Set:
		v := o.value
		*dst = &v
	case Null:
		*dst = nil
	}
}

func applyTime(dst *time.Time, o Opt[time.Time]) {
	if v, ok := o.Value(); ok {
		*dst = v
	}
}

// Apply writes the patch onto a copy of f and returns it. The receiver row
// is not mutated; callers persist the returned value transactionally.
func (p *Patch) Apply(f *Flight) *Flight {
	out := *f
	out.Tracklog = f.Tracklog

	applyString(&out.Airline, p.Airline)
	applyPtr(&out.OperatingAirline, p.OperatingAirline)
	applyString(&out.Number, p.Number)

	applyString(&out.DepartureAirport, p.DepartureAirport)
	applyString(&out.ArrivalAirport, p.ArrivalAirport)
	applyPtr(&out.DiversionAirport, p.DiversionAirport)

	applyTime(&out.OutTimeScheduled, p.OutTimeScheduled)
	applyPtr(&out.OffTimeScheduled, p.OffTimeScheduled)
	applyPtr(&out.OnTimeScheduled, p.OnTimeScheduled)
	applyTime(&out.InTimeScheduled, p.InTimeScheduled)
	applyPtr(&out.OutTimeActual, p.OutTimeActual)
	applyPtr(&out.OffTimeActual, p.OffTimeActual)
	applyPtr(&out.OnTimeActual, p.OnTimeActual)
	applyPtr(&out.InTimeActual, p.InTimeActual)

	applyPtr(&out.AirframeID, p.AirframeID)
	applyPtr(&out.TailNumber, p.TailNumber)
	applyPtr(&out.AircraftType, p.AircraftType)

	applyPtr(&out.DurationMin, p.DurationMin)

	applyPtr(&out.DepartureGate, p.DepartureGate)
	applyPtr(&out.DepartureTerminal, p.DepartureTerminal)
	applyPtr(&out.ArrivalGate, p.ArrivalGate)
	applyPtr(&out.ArrivalTerminal, p.ArrivalTerminal)
	applyPtr(&out.BaggageClaim, p.BaggageClaim)

	applyPtr(&out.Class, p.Class)
	applyPtr(&out.SeatNumber, p.SeatNumber)
	applyPtr(&out.SeatPosition, p.SeatPosition)
	applyPtr(&out.Reason, p.Reason)
	applyPtr(&out.Comments, p.Comments)

	if track, ok := p.Tracklog.Value(); ok {
		out.Tracklog = track
	} else if p.Tracklog.IsNull() {
		out.Tracklog = nil
	}

	return &out
}
