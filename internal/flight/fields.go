package flight

import (
	"time"
)

// TrackedField identifies one audited flight field. The set is fixed; the
// audit trail only records changes to these.
type TrackedField string

const (
	FieldDepartureAirport TrackedField = "departure_airport"
	FieldArrivalAirport   TrackedField = "arrival_airport"
	FieldDiversionAirport TrackedField = "diversion_airport"
	FieldAirline          TrackedField = "airline"
	FieldOperatingAirline TrackedField = "operating_airline"
	FieldFlightNumber     TrackedField = "flight_number"
	FieldAircraftType     TrackedField = "aircraft_type"
	FieldTailNumber       TrackedField = "tail_number"
	FieldClass            TrackedField = "class"
	FieldSeatNumber       TrackedField = "seat_number"
	FieldSeatPosition     TrackedField = "seat_position"
	FieldReason           TrackedField = "reason"
	FieldComments         TrackedField = "comments"
	FieldOutTimeScheduled TrackedField = "out_time_scheduled"
	FieldOffTimeScheduled TrackedField = "off_time_scheduled"
	FieldOnTimeScheduled  TrackedField = "on_time_scheduled"
	FieldInTimeScheduled  TrackedField = "in_time_scheduled"
	FieldOutTimeActual    TrackedField = "out_time_actual"
	FieldOffTimeActual    TrackedField = "off_time_actual"
	FieldOnTimeActual     TrackedField = "on_time_actual"
	FieldInTimeActual     TrackedField = "in_time_actual"
)

// TrackedFields returns all audited fields in a stable order
func TrackedFields() []TrackedField {
	return []TrackedField{
		FieldDepartureAirport, FieldArrivalAirport, FieldDiversionAirport,
		FieldAirline, FieldOperatingAirline, FieldFlightNumber,
		FieldAircraftType, FieldTailNumber,
		FieldClass, FieldSeatNumber, FieldSeatPosition, FieldReason, FieldComments,
		FieldOutTimeScheduled, FieldOffTimeScheduled, FieldOnTimeScheduled, FieldInTimeScheduled,
		FieldOutTimeActual, FieldOffTimeActual, FieldOnTimeActual, FieldInTimeActual,
	}
}

// FieldValue extracts the current value of a tracked field. The result is
// nil, a string, or a time.Time; nothing else.
func (f *Flight) FieldValue(field TrackedField) interface{} {
	switch field {
	case FieldDepartureAirport:
		return f.DepartureAirport
	case FieldArrivalAirport:
		return f.ArrivalAirport
	case FieldDiversionAirport:
		return strPtrValue(f.DiversionAirport)
	case FieldAirline:
		return f.Airline
	case FieldOperatingAirline:
		return strPtrValue(f.OperatingAirline)
	case FieldFlightNumber:
		return f.Number
	case FieldAircraftType:
		return strPtrValue(f.AircraftType)
	case FieldTailNumber:
		return strPtrValue(f.TailNumber)
	case FieldClass:
		return strPtrValue(f.Class)
	case FieldSeatNumber:
		return strPtrValue(f.SeatNumber)
	case FieldSeatPosition:
		return strPtrValue(f.SeatPosition)
	case FieldReason:
		return strPtrValue(f.Reason)
	case FieldComments:
		return strPtrValue(f.Comments)
	case FieldOutTimeScheduled:
		return f.OutTimeScheduled
	case FieldOffTimeScheduled:
		return timePtrValue(f.OffTimeScheduled)
	case FieldOnTimeScheduled:
		return timePtrValue(f.OnTimeScheduled)
	case FieldInTimeScheduled:
		return f.InTimeScheduled
	case FieldOutTimeActual:
		return timePtrValue(f.OutTimeActual)
	case FieldOffTimeActual:
		return timePtrValue(f.OffTimeActual)
	case FieldOnTimeActual:
		return timePtrValue(f.OnTimeActual)
	case FieldInTimeActual:
		return timePtrValue(f.InTimeActual)
	}
	return nil
}

func strPtrValue(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func timePtrValue(p *time.Time) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// ValuesEqual compares two field values with type-aware equality: timestamps
// by instant, everything else by value. Dates at different offsets naming
// the same instant are equal.
func ValuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	ta, aIsTime := a.(time.Time)
	tb, bIsTime := b.(time.Time)
	if aIsTime && bIsTime {
		return ta.Equal(tb)
	}
	if aIsTime || bIsTime {
		return false
	}
	return a == b
}
