package store

import (
	"database/sql"
	"fmt"
	"time"
)

// MarkerStore records that a logical notification has been sent so that
// overlapping cron invocations cannot send it twice. Markers are keyed by
// (kind, reference, detail), e.g. ("event_tier", event id, tier) or
// ("daily_slot", "07:00", "2026-08-29").
type MarkerStore struct {
	db *sql.DB
}

func NewMarkerStore(db *sql.DB) *MarkerStore {
	return &MarkerStore{db: db}
}

// Record stores a marker. Recording the same key twice is a no-op.
func (s *MarkerStore) Record(kind, reference, detail string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sent_notifications (kind, reference, detail)
		 VALUES (?, ?, ?)`,
		kind, reference, detail,
	)
	if err != nil {
		return fmt.Errorf("record sent notification: %w", err)
	}
	return nil
}

// WasSent reports whether a marker exists for the key.
func (s *MarkerStore) WasSent(kind, reference, detail string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sent_notifications
		 WHERE kind = ? AND reference = ? AND detail = ?`,
		kind, reference, detail,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sent notification: %w", err)
	}
	return count > 0, nil
}

// Cleanup deletes markers recorded before the given time.
func (s *MarkerStore) Cleanup(before time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM sent_notifications WHERE sent_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup sent notifications: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
