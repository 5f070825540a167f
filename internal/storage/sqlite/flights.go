package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skyfleet/flightsync/internal/audit"
	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/pkg/logger"
)

// FlightStore is the SQLite-backed store for flight rows
type FlightStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewFlightStore creates a flight store on a shared database handle
func NewFlightStore(db *sql.DB, log *logger.Logger) *FlightStore {
	return &FlightStore{
		db:     db,
		logger: log.Named("flights"),
	}
}

// flightColumns is the column list shared by every read, in scan order
// after id.
const flightColumns = `user_id, airline, operating_airline, number, local_date,
	departure_airport, arrival_airport, diversion_airport,
	out_time_scheduled, off_time_scheduled, on_time_scheduled, in_time_scheduled,
	out_time_actual, off_time_actual, on_time_actual, in_time_actual,
	airframe_id, tail_number, aircraft_type, duration_min,
	departure_gate, departure_terminal, arrival_gate, arrival_terminal, baggage_claim,
	class, seat_number, seat_position, reason, comments,
	tracklog, created_at, updated_at`

// Create inserts a flight row and returns its new ID
func (s *FlightStore) Create(f *flight.Flight) (int64, error) {
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now

	tracklog, err := marshalTracklog(f.Tracklog)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal tracklog: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO flights (`+flightColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, flightArgs(f, tracklog)...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert flight: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted flight id: %w", err)
	}
	f.ID = id

	return id, nil
}

// GetByID returns one flight row
func (s *FlightStore) GetByID(id int64) (*flight.Flight, error) {
	row := s.db.QueryRow(`SELECT id, `+flightColumns+` FROM flights WHERE id = ?`, id)
	f, err := scanFlight(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flight %d: %w", id, err)
	}
	return f, nil
}

// List returns flight rows newest first. userID nil lists all rows.
func (s *FlightStore) List(userID *int64, limit, offset int) ([]*flight.Flight, error) {
	query := `SELECT id, ` + flightColumns + ` FROM flights`
	args := []interface{}{}
	if userID != nil {
		query += ` WHERE user_id = ?`
		args = append(args, *userID)
	}
	query += ` ORDER BY out_time_scheduled DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	return scanFlights(rows)
}

// SelectCandidates returns distinct flight identities whose effective
// departure or arrival time falls inside the given signed offset windows
// around now. Rows missing airline or flight number cannot be looked up
// anywhere and are never selected.
func (s *FlightStore) SelectCandidates(now time.Time, depFrom, depTo, arrFrom, arrTo time.Duration) ([]flight.Identity, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT airline, number, local_date, departure_airport, arrival_airport
		FROM flights
		WHERE airline != '' AND number != ''
		AND (
			COALESCE(out_time_actual, out_time_scheduled) BETWEEN ? AND ?
			OR COALESCE(in_time_actual, in_time_scheduled) BETWEEN ? AND ?
		)
	`,
		formatTime(now.Add(depFrom)), formatTime(now.Add(depTo)),
		formatTime(now.Add(arrFrom)), formatTime(now.Add(arrTo)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var ids []flight.Identity
	for rows.Next() {
		var id flight.Identity
		if err := rows.Scan(&id.Airline, &id.Number, &id.LocalDate, &id.DepartureAirport, &id.ArrivalAirport); err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidate rows: %w", err)
	}

	return ids, nil
}

// GroupByIdentity returns every row sharing the logical flight key,
// owned and shadow alike.
func (s *FlightStore) GroupByIdentity(id flight.Identity) (*flight.Group, error) {
	rows, err := s.db.Query(`
		SELECT id, `+flightColumns+`
		FROM flights
		WHERE airline = ? AND number = ? AND local_date = ?
		AND departure_airport = ? AND arrival_airport = ?
	`, id.Airline, id.Number, id.LocalDate, id.DepartureAirport, id.ArrivalAirport)
	if err != nil {
		return nil, fmt.Errorf("failed to query group %s: %w", id.Key(), err)
	}
	defer rows.Close()

	flights, err := scanFlights(rows)
	if err != nil {
		return nil, err
	}

	return &flight.Group{Identity: id, Flights: flights}, nil
}

// ShadowByAirframe returns the shadow rows attached to one physical
// aircraft.
func (s *FlightStore) ShadowByAirframe(airframeID string) ([]*flight.Flight, error) {
	rows, err := s.db.Query(`
		SELECT id, `+flightColumns+`
		FROM flights
		WHERE user_id IS NULL AND airframe_id = ?
	`, airframeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shadow flights: %w", err)
	}
	defer rows.Close()

	return scanFlights(rows)
}

// SelectCompleted returns owned rows with both gate-departure and
// gate-arrival actuals recorded, scheduled to depart at or after since.
func (s *FlightStore) SelectCompleted(since time.Time) ([]*flight.Flight, error) {
	rows, err := s.db.Query(`
		SELECT id, `+flightColumns+`
		FROM flights
		WHERE user_id IS NOT NULL
		AND out_time_actual IS NOT NULL AND in_time_actual IS NOT NULL
		AND out_time_scheduled >= ?
		ORDER BY out_time_scheduled DESC
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query completed flights: %w", err)
	}
	defer rows.Close()

	return scanFlights(rows)
}

// Delete removes a flight row. Change history goes with it via cascade.
func (s *FlightStore) Delete(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM flights WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete flight %d: %w", id, err)
	}
	return nil
}

// CountShadow returns the number of shadow rows
func (s *FlightStore) CountShadow() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM flights WHERE user_id IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count shadow flights: %w", err)
	}
	return count, nil
}

// ApplyGroupUpdate persists the reconciled rows of one flight group and
// their change commits in a single transaction. Either every row and every
// commit lands, or none do.
func (s *FlightStore) ApplyGroupUpdate(flights []*flight.Flight, commits []*audit.ChangeCommit) error {
	if len(flights) == 0 && len(commits) == 0 {
		return nil
	}

	var tx *sql.Tx
	var err error

	// Retry up to 3 times with exponential backoff
	for i := 0; i < 3; i++ {
		tx, err = s.db.Begin()
		if err == nil {
			break
		}
		s.logger.Warn("Failed to begin transaction, retrying...",
			logger.Error(err),
			logger.Int("attempt", i+1))
		time.Sleep(time.Duration(100*(1<<i)) * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("failed to begin transaction after retries: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, f := range flights {
		f.UpdatedAt = now
		if err := updateFlightTx(tx, f); err != nil {
			return err
		}
	}

	for _, c := range commits {
		if err := insertCommitTx(tx, c); err != nil {
			return err
		}
	}

	for i := 0; i < 3; i++ {
		err = tx.Commit()
		if err == nil {
			break
		}
		s.logger.Warn("Failed to commit transaction, retrying...",
			logger.Error(err),
			logger.Int("attempt", i+1))
		time.Sleep(time.Duration(100*(1<<i)) * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("failed to commit group update after retries: %w", err)
	}

	return nil
}

// updateFlightTx rewrites every mutable column of one row
func updateFlightTx(tx *sql.Tx, f *flight.Flight) error {
	tracklog, err := marshalTracklog(f.Tracklog)
	if err != nil {
		return fmt.Errorf("failed to marshal tracklog: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE flights SET
			airline = ?, operating_airline = ?, number = ?, local_date = ?,
			departure_airport = ?, arrival_airport = ?, diversion_airport = ?,
			out_time_scheduled = ?, off_time_scheduled = ?, on_time_scheduled = ?, in_time_scheduled = ?,
			out_time_actual = ?, off_time_actual = ?, on_time_actual = ?, in_time_actual = ?,
			airframe_id = ?, tail_number = ?, aircraft_type = ?, duration_min = ?,
			departure_gate = ?, departure_terminal = ?, arrival_gate = ?, arrival_terminal = ?, baggage_claim = ?,
			class = ?, seat_number = ?, seat_position = ?, reason = ?, comments = ?,
			tracklog = ?, updated_at = ?
		WHERE id = ?
	`,
		f.Airline, f.OperatingAirline, f.Number, f.LocalDate,
		f.DepartureAirport, f.ArrivalAirport, f.DiversionAirport,
		formatTime(f.OutTimeScheduled), formatNullableTime(f.OffTimeScheduled), formatNullableTime(f.OnTimeScheduled), formatTime(f.InTimeScheduled),
		formatNullableTime(f.OutTimeActual), formatNullableTime(f.OffTimeActual), formatNullableTime(f.OnTimeActual), formatNullableTime(f.InTimeActual),
		f.AirframeID, f.TailNumber, f.AircraftType, f.DurationMin,
		f.DepartureGate, f.DepartureTerminal, f.ArrivalGate, f.ArrivalTerminal, f.BaggageClaim,
		f.Class, f.SeatNumber, f.SeatPosition, f.Reason, f.Comments,
		tracklog, formatTime(f.UpdatedAt),
		f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update flight %d: %w", f.ID, err)
	}
	return nil
}

// flightArgs renders a flight into insert arguments matching flightColumns
func flightArgs(f *flight.Flight, tracklog interface{}) []interface{} {
	return []interface{}{
		f.UserID, f.Airline, f.OperatingAirline, f.Number, f.LocalDate,
		f.DepartureAirport, f.ArrivalAirport, f.DiversionAirport,
		formatTime(f.OutTimeScheduled), formatNullableTime(f.OffTimeScheduled), formatNullableTime(f.OnTimeScheduled), formatTime(f.InTimeScheduled),
		formatNullableTime(f.OutTimeActual), formatNullableTime(f.OffTimeActual), formatNullableTime(f.OnTimeActual), formatNullableTime(f.InTimeActual),
		f.AirframeID, f.TailNumber, f.AircraftType, f.DurationMin,
		f.DepartureGate, f.DepartureTerminal, f.ArrivalGate, f.ArrivalTerminal, f.BaggageClaim,
		f.Class, f.SeatNumber, f.SeatPosition, f.Reason, f.Comments,
		tracklog, formatTime(f.CreatedAt), formatTime(f.UpdatedAt),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanFlight reads one row in flightColumns order
func scanFlight(row rowScanner) (*flight.Flight, error) {
	var f flight.Flight
	var userID sql.NullInt64
	var operatingAirline, diversionAirport sql.NullString
	var outSched, inSched, createdAt, updatedAt string
	var offSched, onSched, outActual, offActual, onActual, inActual sql.NullString
	var airframeID, tailNumber, aircraftType sql.NullString
	var durationMin sql.NullInt64
	var depGate, depTerminal, arrGate, arrTerminal, baggage sql.NullString
	var class, seatNumber, seatPosition, reason, comments sql.NullString
	var tracklog sql.NullString

	err := row.Scan(
		&f.ID, &userID, &f.Airline, &operatingAirline, &f.Number, &f.LocalDate,
		&f.DepartureAirport, &f.ArrivalAirport, &diversionAirport,
		&outSched, &offSched, &onSched, &inSched,
		&outActual, &offActual, &onActual, &inActual,
		&airframeID, &tailNumber, &aircraftType, &durationMin,
		&depGate, &depTerminal, &arrGate, &arrTerminal, &baggage,
		&class, &seatNumber, &seatPosition, &reason, &comments,
		&tracklog, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		v := userID.Int64
		f.UserID = &v
	}
	f.OperatingAirline = nullableString(operatingAirline)
	f.DiversionAirport = nullableString(diversionAirport)

	if f.OutTimeScheduled, err = parseTime(outSched); err != nil {
		return nil, fmt.Errorf("failed to parse out_time_scheduled: %w", err)
	}
	if f.InTimeScheduled, err = parseTime(inSched); err != nil {
		return nil, fmt.Errorf("failed to parse in_time_scheduled: %w", err)
	}
	if f.OffTimeScheduled, err = parseNullableTime(offSched); err != nil {
		return nil, fmt.Errorf("failed to parse off_time_scheduled: %w", err)
	}
	if f.OnTimeScheduled, err = parseNullableTime(onSched); err != nil {
		return nil, fmt.Errorf("failed to parse on_time_scheduled: %w", err)
	}
	if f.OutTimeActual, err = parseNullableTime(outActual); err != nil {
		return nil, fmt.Errorf("failed to parse out_time_actual: %w", err)
	}
	if f.OffTimeActual, err = parseNullableTime(offActual); err != nil {
		return nil, fmt.Errorf("failed to parse off_time_actual: %w", err)
	}
	if f.OnTimeActual, err = parseNullableTime(onActual); err != nil {
		return nil, fmt.Errorf("failed to parse on_time_actual: %w", err)
	}
	if f.InTimeActual, err = parseNullableTime(inActual); err != nil {
		return nil, fmt.Errorf("failed to parse in_time_actual: %w", err)
	}

	f.AirframeID = nullableString(airframeID)
	f.TailNumber = nullableString(tailNumber)
	f.AircraftType = nullableString(aircraftType)
	if durationMin.Valid {
		v := int(durationMin.Int64)
		f.DurationMin = &v
	}

	f.DepartureGate = nullableString(depGate)
	f.DepartureTerminal = nullableString(depTerminal)
	f.ArrivalGate = nullableString(arrGate)
	f.ArrivalTerminal = nullableString(arrTerminal)
	f.BaggageClaim = nullableString(baggage)

	f.Class = nullableString(class)
	f.SeatNumber = nullableString(seatNumber)
	f.SeatPosition = nullableString(seatPosition)
	f.Reason = nullableString(reason)
	f.Comments = nullableString(comments)

	if tracklog.Valid && tracklog.String != "" {
		if err := json.Unmarshal([]byte(tracklog.String), &f.Tracklog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tracklog: %w", err)
		}
	}

	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &f, nil
}

func scanFlights(rows *sql.Rows) ([]*flight.Flight, error) {
	var flights []*flight.Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight row: %w", err)
		}
		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flight rows: %w", err)
	}
	return flights, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// formatNullableTime formats a nullable time.Time for SQL
func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// marshalTracklog converts a position trace to its stored JSON form.
// Empty traces store as NULL.
func marshalTracklog(points []flight.TrackPoint) (interface{}, error) {
	if len(points) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(points)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
