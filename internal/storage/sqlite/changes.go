package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skyfleet/flightsync/internal/audit"
	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/pkg/logger"
)

// ChangeStore reads the change history written alongside flight updates
type ChangeStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewChangeStore creates a change history store on a shared database handle
func NewChangeStore(db *sql.DB, log *logger.Logger) *ChangeStore {
	return &ChangeStore{
		db:     db,
		logger: log.Named("changes"),
	}
}

// insertCommitTx writes one commit and its entries inside a caller-owned
// transaction. Used by FlightStore.ApplyGroupUpdate so history lands
// atomically with the rows it describes.
func insertCommitTx(tx *sql.Tx, c *audit.ChangeCommit) error {
	_, err := tx.Exec(`
		INSERT INTO change_commits (id, flight_id, changed_by_user_id, route, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.FlightID, c.ChangedByUserID, c.Route, formatTime(c.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert change commit %s: %w", c.ID, err)
	}

	for _, e := range c.Entries {
		_, err := tx.Exec(`
			INSERT INTO change_entries (commit_id, field, old_value, new_value)
			VALUES (?, ?, ?, ?)
		`, c.ID, string(e.Field), e.OldValue, e.NewValue)
		if err != nil {
			return fmt.Errorf("failed to insert change entry for commit %s: %w", c.ID, err)
		}
	}

	return nil
}

// ListByFlight returns a flight's commits newest first with their entries
// attached.
func (s *ChangeStore) ListByFlight(flightID int64) ([]*audit.ChangeCommit, error) {
	rows, err := s.db.Query(`
		SELECT id, flight_id, changed_by_user_id, route, timestamp
		FROM change_commits
		WHERE flight_id = ?
		ORDER BY timestamp DESC
	`, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to query change commits: %w", err)
	}
	defer rows.Close()

	var commits []*audit.ChangeCommit
	byID := make(map[string]*audit.ChangeCommit)

	for rows.Next() {
		var c audit.ChangeCommit
		var changedBy sql.NullInt64
		var route sql.NullString
		var timestamp string

		if err := rows.Scan(&c.ID, &c.FlightID, &changedBy, &route, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan change commit row: %w", err)
		}

		if changedBy.Valid {
			v := changedBy.Int64
			c.ChangedByUserID = &v
		}
		if route.Valid {
			c.Route = route.String
		}

		t, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse commit timestamp: %w", err)
		}
		c.Timestamp = t

		commits = append(commits, &c)
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change commit rows: %w", err)
	}

	if len(commits) == 0 {
		return commits, nil
	}

	if err := s.attachEntries(flightID, byID); err != nil {
		return nil, err
	}

	return commits, nil
}

// attachEntries loads every entry of a flight's commits in one query
func (s *ChangeStore) attachEntries(flightID int64, byID map[string]*audit.ChangeCommit) error {
	rows, err := s.db.Query(`
		SELECT e.commit_id, e.field, e.old_value, e.new_value
		FROM change_entries e
		JOIN change_commits c ON c.id = e.commit_id
		WHERE c.flight_id = ?
		ORDER BY e.id ASC
	`, flightID)
	if err != nil {
		return fmt.Errorf("failed to query change entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var commitID, field string
		var oldValue, newValue sql.NullString

		if err := rows.Scan(&commitID, &field, &oldValue, &newValue); err != nil {
			return fmt.Errorf("failed to scan change entry row: %w", err)
		}

		c, ok := byID[commitID]
		if !ok {
			continue
		}
		c.Entries = append(c.Entries, audit.ChangeEntry{
			Field:    flight.TrackedField(field),
			OldValue: nullableString(oldValue),
			NewValue: nullableString(newValue),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating change entry rows: %w", err)
	}

	return nil
}
