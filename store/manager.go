package store

import (
	"path/filepath"
	"sync"

	verrors "github.com/daemonvigil/vigil/errors"
	"github.com/daemonvigil/vigil/logging"
)

// Manager creates and caches exactly one UserStore handle per user id.
type Manager struct {
	baseDir  string
	defaults Defaults
	log      *logging.Logger

	// mu guards the handle cache only. Per-user I/O is guarded by each
	// store's own mutex; this lock is never held across file I/O beyond
	// first-time directory creation.
	mu     sync.Mutex
	stores map[string]*UserStore
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// BaseDir is the root of the per-user directories (e.g. data/users).
	BaseDir string

	// Defaults seed new user config records. Zero fields fall back to
	// the stock defaults.
	Defaults Defaults

	// Logger for config-recovery warnings. Defaults to a new stdout
	// logger.
	Logger *logging.Logger
}

// Validate checks the configuration.
func (c *ManagerConfig) Validate() error {
	if c.BaseDir == "" {
		return verrors.InvalidInput("base directory is required")
	}
	return nil
}

// NewManager creates a storage manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	return &Manager{
		baseDir:  cfg.BaseDir,
		defaults: cfg.Defaults.applyFallbacks(),
		log:      log.WithComponent("store"),
		stores:   make(map[string]*UserStore),
	}, nil
}

// Get returns the user's store handle, creating the backing structures on
// first access. Subsequent calls for the same id return the identical
// handle.
func (m *Manager) Get(userID string) (*UserStore, error) {
	if userID == "" {
		return nil, verrors.InvalidInput("user id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[userID]; ok {
		return s, nil
	}

	s, err := newUserStore(userID, filepath.Join(m.baseDir, userID), m.defaults, m.log)
	if err != nil {
		return nil, err
	}
	m.stores[userID] = s
	return s, nil
}

// Defaults returns the manager's effective defaults.
func (m *Manager) Defaults() Defaults {
	return m.defaults
}
