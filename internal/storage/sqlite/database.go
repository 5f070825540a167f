// Package sqlite persists flight rows and their change history.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/skyfleet/flightsync/pkg/logger"
	_ "modernc.org/sqlite"
)

// NewDatabase opens the SQLite database, applies pragmas, and initializes
// the schema. The returned handle is shared by the stores.
func NewDatabase(dbPath string, log *logger.Logger) (*sql.DB, error) {
	dbLogger := log.Named("sqlite")

	dbLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initDatabase(db, dbLogger); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	// A row with user_id NULL is a shadow flight: a historical leg created
	// from aircraft activity, not owned by any user.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flights (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER,
			airline TEXT NOT NULL,
			operating_airline TEXT,
			number TEXT NOT NULL,
			local_date TEXT NOT NULL,
			departure_airport TEXT NOT NULL,
			arrival_airport TEXT NOT NULL,
			diversion_airport TEXT,
			out_time_scheduled TIMESTAMP NOT NULL,
			off_time_scheduled TIMESTAMP,
			on_time_scheduled TIMESTAMP,
			in_time_scheduled TIMESTAMP NOT NULL,
			out_time_actual TIMESTAMP,
			off_time_actual TIMESTAMP,
			on_time_actual TIMESTAMP,
			in_time_actual TIMESTAMP,
			airframe_id TEXT,
			tail_number TEXT,
			aircraft_type TEXT,
			duration_min INTEGER,
			departure_gate TEXT,
			departure_terminal TEXT,
			arrival_gate TEXT,
			arrival_terminal TEXT,
			baggage_claim TEXT,
			class TEXT,
			seat_number TEXT,
			seat_position TEXT,
			reason TEXT,
			comments TEXT,
			tracklog TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flights table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS change_commits (
			id TEXT PRIMARY KEY,
			flight_id INTEGER NOT NULL,
			changed_by_user_id INTEGER,
			route TEXT,
			timestamp TIMESTAMP NOT NULL,
			FOREIGN KEY (flight_id) REFERENCES flights(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create change_commits table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS change_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			commit_id TEXT NOT NULL,
			field TEXT NOT NULL,
			old_value TEXT,
			new_value TEXT,
			FOREIGN KEY (commit_id) REFERENCES change_commits(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create change_entries table: %w", err)
	}

	// Identity lookup and candidate selection indexes. Effective times are
	// RFC3339 UTC text so range comparisons work lexically.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_flights_identity ON flights(airline, number, local_date, departure_airport, arrival_airport)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_user ON flights(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_airframe ON flights(airframe_id)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_out_sched ON flights(out_time_scheduled)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_in_sched ON flights(in_time_scheduled)`,
		`CREATE INDEX IF NOT EXISTS idx_change_commits_flight ON change_commits(flight_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_change_entries_commit ON change_entries(commit_id)`,
	}
	for _, stmt := range indexes {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	log.Info("Database schema initialized successfully")
	return nil
}
