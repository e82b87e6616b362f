package store

import (
	"time"
)

// Message is one conversation turn. The log is append-only and
// chronological.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
}

// Note is one scratchpad entry. The log is append-only, chronological,
// and unbounded.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"note"`
}

// UserConfig is one user's persisted configuration record.
type UserConfig struct {
	UserID                   string    `json:"user_id"`
	Model                    string    `json:"model"`
	HeartbeatEnabled         bool      `json:"heartbeat_enabled"`
	HeartbeatIntervalMinutes int       `json:"heartbeat_interval_minutes"`
	MaxContextMessages       int       `json:"max_context_messages"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Interval returns the heartbeat interval as a duration.
func (c UserConfig) Interval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMinutes) * time.Minute
}

// ConfigUpdate is a partial update of UserConfig. Nil fields are left
// untouched. UserID and CreatedAt are not updatable; UpdatedAt is always
// refreshed by the store.
type ConfigUpdate struct {
	Model                    *string
	HeartbeatEnabled         *bool
	HeartbeatIntervalMinutes *int
	MaxContextMessages       *int
}

// Defaults seed a user's config record on first access.
type Defaults struct {
	Model                    string
	HeartbeatIntervalMinutes int
	MaxContextMessages       int
}

// DefaultDefaults returns the stock defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Model:                    "claude-sonnet-4-20250514",
		HeartbeatIntervalMinutes: 15,
		MaxContextMessages:       50,
	}
}

// applyFallbacks fills zero fields from the stock defaults.
func (d Defaults) applyFallbacks() Defaults {
	stock := DefaultDefaults()
	if d.Model == "" {
		d.Model = stock.Model
	}
	if d.HeartbeatIntervalMinutes <= 0 {
		d.HeartbeatIntervalMinutes = stock.HeartbeatIntervalMinutes
	}
	if d.MaxContextMessages <= 0 {
		d.MaxContextMessages = stock.MaxContextMessages
	}
	return d
}
