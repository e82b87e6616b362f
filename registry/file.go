package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	verrors "github.com/daemonvigil/vigil/errors"
	"github.com/daemonvigil/vigil/logging"
)

// FileRegistry persists users as an ordered JSON list.
type FileRegistry struct {
	mu    sync.Mutex
	path  string
	users []User
	log   *logging.Logger
}

// FileConfig configures a FileRegistry.
type FileConfig struct {
	// Path is the registry file location (e.g. data/users.json).
	Path string

	// Logger for warnings. Defaults to a new stdout logger.
	Logger *logging.Logger
}

// Validate checks the configuration.
func (c *FileConfig) Validate() error {
	if c.Path == "" {
		return verrors.InvalidInput("registry path is required")
	}
	return nil
}

// usersFile is the on-disk layout.
type usersFile struct {
	Users []User `json:"users"`
}

// NewFileRegistry opens or creates the registry file.
func NewFileRegistry(cfg FileConfig) (*FileRegistry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	r := &FileRegistry{
		path: cfg.Path,
		log:  log.WithComponent("registry"),
	}

	data, err := os.ReadFile(cfg.Path)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, verrors.StorageIO("create registry directory", verrors.WithCause(err))
		}
		if err := r.persistLocked(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, verrors.StorageIO("read registry file", verrors.WithCause(err))
	default:
		var f usersFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, verrors.StorageIO("parse registry file", verrors.WithCause(err))
		}
		r.users = f.Users
	}

	return r, nil
}

// Register adds a user if absent and returns the record.
func (r *FileRegistry) Register(id, displayName string) (*User, error) {
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
	if err := r.persistLocked(); err != nil {
		r.users = r.users[:len(r.users)-1]
		return nil, err
	}

	r.log.Info("registered user", map[string]interface{}{"user": id})
	return &u, nil
}

// Get retrieves a user by id.
func (r *FileRegistry) Get(id string) (*User, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.findLocked(id)
	if u == nil {
		return nil, verrors.UnknownUser(id)
	}
	copied := *u
	return &copied, nil
}

// UpdateLastSeen stamps last_seen; unknown ids are a logged no-op.
func (r *FileRegistry) UpdateLastSeen(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.findLocked(id)
	if u == nil {
		r.log.Warn("last_seen update for unknown user", map[string]interface{}{"user": id})
		return
	}
	u.LastSeen = time.Now().UTC()
	if err := r.persistLocked(); err != nil {
		r.log.Warn("persist last_seen failed", map[string]interface{}{"user": id, "error": err})
	}
}

// List returns users with the given status in insertion order.
func (r *FileRegistry) List(status Status) ([]User, error) {
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
func (r *FileRegistry) SetStatus(id string, status Status) error {
	if err := validateID(id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.findLocked(id)
	if u == nil {
		return verrors.UnknownUser(id)
	}
	prev := u.Status
	u.Status = status
	if err := r.persistLocked(); err != nil {
		u.Status = prev
		return err
	}

	r.log.Info("status changed", map[string]interface{}{"user": id, "status": status})
	return nil
}

// Deactivate sets status=inactive.
func (r *FileRegistry) Deactivate(id string) error {
	return r.SetStatus(id, StatusInactive)
}

// findLocked returns a pointer into the backing slice. Callers hold r.mu.
func (r *FileRegistry) findLocked(id string) *User {
	for i := range r.users {
		if r.users[i].ID == id {
			return &r.users[i]
		}
	}
	return nil
}

// persistLocked rewrites the registry file. Callers hold r.mu.
func (r *FileRegistry) persistLocked() error {
	users := r.users
	if users == nil {
		users = []User{}
	}
	data, err := json.MarshalIndent(usersFile{Users: users}, "", "  ")
	if err != nil {
		return verrors.StorageIO("encode registry", verrors.WithCause(err))
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return verrors.StorageIO("write registry file", verrors.WithCause(err))
	}
	return nil
}
