package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/felipeor/sideline/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Create(userID, title, description, location string, startTime, endTime time.Time) (*model.Event, error) {
	result, err := s.db.Exec(
		`INSERT INTO events (user_id, title, description, location, start_time, end_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, title, description, location, startTime.UTC(), endTime.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	id, _ := result.LastInsertId()
	return s.GetByID(id)
}

func (s *EventStore) GetByID(id int64) (*model.Event, error) {
	var event model.Event
	err := s.db.QueryRow(
		`SELECT id, user_id, title, description, location, start_time, end_time, created_at, updated_at
		 FROM events WHERE id = ?`, id,
	).Scan(&event.ID, &event.UserID, &event.Title, &event.Description, &event.Location,
		&event.StartTime, &event.EndTime, &event.CreatedAt, &event.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &event, nil
}

func (s *EventStore) ListByUser(userID string) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, title, description, location, start_time, end_time, created_at, updated_at
		 FROM events WHERE user_id = ? ORDER BY start_time`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events by user: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListUpcoming returns events across all users whose start time falls in
// [from, to), ordered by start time. The proximity notifier calls this with
// a window reaching slightly into the past to catch just-started events.
func (s *EventStore) ListUpcoming(from, to time.Time) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, title, description, location, start_time, end_time, created_at, updated_at
		 FROM events WHERE start_time >= ? AND start_time < ? ORDER BY start_time`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *EventStore) Update(id int64, title, description, location string, startTime, endTime time.Time) (*model.Event, error) {
	_, err := s.db.Exec(
		`UPDATE events SET title = ?, description = ?, location = ?, start_time = ?, end_time = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		title, description, location, startTime.UTC(), endTime.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return s.GetByID(id)
}

func (s *EventStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var event model.Event
		if err := rows.Scan(&event.ID, &event.UserID, &event.Title, &event.Description, &event.Location,
			&event.StartTime, &event.EndTime, &event.CreatedAt, &event.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
