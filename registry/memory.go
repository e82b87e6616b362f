package registry

import (
	"sync"
	"time"

	verrors "github.com/daemonvigil/vigil/errors"
)

// MemoryRegistry is an in-memory Registry for tests.
type MemoryRegistry struct {
	mu    sync.Mutex
	users []User
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

// Register adds a user if absent and returns the record.
func (r *MemoryRegistry) Register(id, displayName string) (*User, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if u := r.findLocked(id); u != nil {
		copied := *u
		return &copied, nil
	}

	now := time.Now().UTC()
	u := User{
		ID:           id,
		DisplayName:  displayName,
		RegisteredAt: now,
		LastSeen:     now,
		Status:       StatusActive,
	}
	r.users = append(r.users, u)
	return &u, nil
}

// Get retrieves a user by id.
func (r *MemoryRegistry) Get(id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.findLocked(id)
	if u == nil {
		return nil, verrors.UnknownUser(id)
	}
	copied := *u
	return &copied, nil
}

// UpdateLastSeen stamps last_seen; unknown ids are ignored.
func (r *MemoryRegistry) UpdateLastSeen(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u := r.findLocked(id); u != nil {
		u.LastSeen = time.Now().UTC()
	}
}

// List returns users with the given status in insertion order.
func (r *MemoryRegistry) List(status Status) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []User
	for _, u := range r.users {
		if status == "" || u.Status == status {
			result = append(result, u)
		}
	}
	return result, nil
}

// SetStatus transitions a user's lifecycle status.
func (r *MemoryRegistry) SetStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.findLocked(id)
	if u == nil {
		return verrors.UnknownUser(id)
	}
	u.Status = status
	return nil
}

// Deactivate sets status=inactive.
func (r *MemoryRegistry) Deactivate(id string) error {
	return r.SetStatus(id, StatusInactive)
}

func (r *MemoryRegistry) findLocked(id string) *User {
	for i := range r.users {
		if r.users[i].ID == id {
			return &r.users[i]
		}
	}
	return nil
}
