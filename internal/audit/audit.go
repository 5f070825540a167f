// Package audit records field-level change history for flights. Every write
// that alters a tracked field produces a commit with one entry per changed
// field, carrying the old and new raw values.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skyfleet/flightsync/internal/flight"
)

// ChangeCommit groups the field changes produced by a single write to a
// single flight row. ChangedByUserID is nil for automated reconciliation
// writes and set for manual edits.
type ChangeCommit struct {
	ID              string        `json:"id"`
	FlightID        int64         `json:"flight_id"`
	ChangedByUserID *int64        `json:"changed_by_user_id,omitempty"`
	Route           string        `json:"route,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
	Entries         []ChangeEntry `json:"entries"`
}

// ChangeEntry is one field transition inside a commit. OldValue and NewValue
// hold the raw stored representation; display formatting is a presentation
// concern and happens at read time.
type ChangeEntry struct {
	Field    flight.TrackedField `json:"field"`
	OldValue *string             `json:"old_value"`
	NewValue *string             `json:"new_value"`
}

// NewCommit builds a commit envelope for a flight write. Entries are
// attached by the caller via Diff.
func NewCommit(flightID int64, actorUserID *int64, route string, at time.Time) *ChangeCommit {
	return &ChangeCommit{
		ID:              uuid.NewString(),
		FlightID:        flightID,
		ChangedByUserID: actorUserID,
		Route:           route,
		Timestamp:       at.UTC(),
	}
}

// rawValue renders a tracked field value into its stored string form.
// nil stays nil so cleared fields are distinguishable from empty strings.
func rawValue(v any) *string {
	if v == nil {
		return nil
	}
	var s string
	switch tv := v.(type) {
	case string:
		s = tv
	case time.Time:
		s = tv.UTC().Format(time.RFC3339)
	default:
		s = fmt.Sprintf("%v", tv)
	}
	return &s
}

// Diff compares two versions of the same flight and returns one entry per
// tracked field whose value changed. An empty result means the write was a
// no-op and no commit should be recorded.
func Diff(before, after *flight.Flight) []ChangeEntry {
	var entries []ChangeEntry
	for _, f := range flight.TrackedFields() {
		oldV := before.FieldValue(f)
		newV := after.FieldValue(f)
		if flight.ValuesEqual(oldV, newV) {
			continue
		}
		entries = append(entries, ChangeEntry{
			Field:    f,
			OldValue: rawValue(oldV),
			NewValue: rawValue(newV),
		})
	}
	return entries
}
