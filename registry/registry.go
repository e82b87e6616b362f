package registry

import (
	"time"

	verrors "github.com/daemonvigil/vigil/errors"
)

// Status represents a user's coarse lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBanned   Status = "banned"
)

// User is one registry record.
type User struct {
	ID           string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
	Status       Status    `json:"status"`
}

// Registry is the durable catalog of known users.
type Registry interface {
	// Register adds a user if absent and returns the record. Idempotent:
	// an existing record is returned unchanged.
	Register(id, displayName string) (*User, error)

	// Get retrieves a user by id. Returns an unknown_user error if absent.
	Get(id string) (*User, error)

	// UpdateLastSeen stamps the user's last_seen with the current time.
	// Unknown ids are logged as a warning and ignored; UpdateLastSeen
	// never fails the inbound interaction that triggered it.
	UpdateLastSeen(id string)

	// List returns users with the given status in insertion order.
	// An empty status returns every user.
	List(status Status) ([]User, error)

	// SetStatus transitions a user's lifecycle status.
	SetStatus(id string, status Status) error

	// Deactivate sets status=inactive. It does not cancel the user's
	// scheduler job.
	Deactivate(id string) error
}

func validateID(id string) error {
	if id == "" {
		return verrors.InvalidInput("user id must not be empty")
	}
	return nil
}
