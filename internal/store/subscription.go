package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/felipeor/sideline/internal/model"
)

// UpsertAction reports whether an upsert created a new subscription row or
// refreshed an existing one.
type UpsertAction string

const (
	ActionCreated UpsertAction = "created"
	ActionUpdated UpsertAction = "updated"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Upsert registers a subscription for (userID, endpoint). If the endpoint is
// currently owned by a different user the old row is deleted first: a device
// notifies only the user it last registered under. Re-registration with the
// same pair refreshes the keys and updated_at rather than inserting.
func (s *SubscriptionStore) Upsert(userID, endpoint, p256dh, auth string) (*model.Subscription, UpsertAction, error) {
	_, err := s.db.Exec(
		`DELETE FROM push_subscriptions WHERE endpoint = ? AND user_id <> ?`,
		endpoint, userID,
	)
	if err != nil {
		return nil, "", fmt.Errorf("transfer endpoint ownership: %w", err)
	}

	var existingID int64
	action := ActionCreated
	err = s.db.QueryRow(
		`SELECT id FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`,
		userID, endpoint,
	).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, "", fmt.Errorf("check existing subscription: %w", err)
	default:
		action = ActionUpdated
	}

	_, err = s.db.Exec(
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(endpoint) DO UPDATE SET
		     p256dh = excluded.p256dh,
		     auth = excluded.auth,
		     updated_at = CURRENT_TIMESTAMP`,
		userID, endpoint, p256dh, auth,
	)
	if err != nil {
		return nil, "", fmt.Errorf("upsert subscription: %w", err)
	}

	sub, err := s.GetByEndpoint(endpoint)
	if err != nil {
		return nil, "", err
	}
	return sub, action, nil
}

// GetByEndpoint returns the subscription for an endpoint, or nil if none.
func (s *SubscriptionStore) GetByEndpoint(endpoint string) (*model.Subscription, error) {
	var sub model.Subscription
	var updatedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, user_id, endpoint, p256dh, auth, created_at, updated_at
		 FROM push_subscriptions WHERE endpoint = ?`, endpoint,
	).Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by endpoint: %w", err)
	}
	if updatedAt.Valid {
		sub.UpdatedAt = &updatedAt.Time
	}
	return &sub, nil
}

// DeleteByUser removes all of a user's subscriptions, or just the one for
// endpoint when it is non-empty. Deleting rows that do not exist is not an
// error; the count of removed rows is returned.
func (s *SubscriptionStore) DeleteByUser(userID, endpoint string) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if endpoint != "" {
		result, err = s.db.Exec(
			`DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`,
			userID, endpoint,
		)
	} else {
		result, err = s.db.Exec(`DELETE FROM push_subscriptions WHERE user_id = ?`, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions by user: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// DeleteByEndpoint removes a subscription regardless of owner. Used when the
// push service reports the endpoint permanently gone.
func (s *SubscriptionStore) DeleteByEndpoint(endpoint string) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return 0, fmt.Errorf("delete subscription by endpoint: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

func (s *SubscriptionStore) ListByUser(userID string) ([]model.Subscription, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, endpoint, p256dh, auth, created_at, updated_at
		 FROM push_subscriptions WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions by user: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// ListAll returns every subscription, or only those belonging to userIDs
// when the filter is non-empty.
func (s *SubscriptionStore) ListAll(userIDs []string) ([]model.Subscription, error) {
	query := `SELECT id, user_id, endpoint, p256dh, auth, created_at, updated_at
	          FROM push_subscriptions`
	var args []any
	if len(userIDs) > 0 {
		placeholders := strings.Repeat("?,", len(userIDs))
		query += ` WHERE user_id IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, id := range userIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list all subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		var updatedAt sql.NullTime
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if updatedAt.Valid {
			sub.UpdatedAt = &updatedAt.Time
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
