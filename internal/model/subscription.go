package model

import "time"

// Marker kinds for the sent_notifications dedup table.
const (
	MarkerEventTier        = "event_tier"
	MarkerDailySlot        = "daily_slot"
	MarkerPermissionPrompt = "permission_prompt"
)

// Subscription is one push registration for a (user, device endpoint) pair.
// The endpoint is globally unique: a physical device notifies only the user
// it is currently registered to.
type Subscription struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	Endpoint  string     `json:"endpoint"`
	P256dh    string     `json:"p256dh"`
	Auth      string     `json:"auth"`
	CreatedAt time.Time  `json:"created_at"`
	// UpdatedAt is nil on rows created before the updated_at migration.
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
