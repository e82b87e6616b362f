package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	verrors "github.com/daemonvigil/vigil/errors"
	"github.com/daemonvigil/vigil/logging"
)

const (
	messagesFile = "messages.json"
	notesFile    = "scratchpad.json"
	configFile   = "user_config.json"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UserStore bundles one user's message log, note log, and configuration.
// All operations are read-modify-write critical sections under the
// store's own mutex, so readers never observe a partially written record.
type UserStore struct {
	userID   string
	dir      string
	defaults Defaults
	log      *logging.Logger

	mu sync.Mutex
}

type messagesDoc struct {
	Messages []Message `json:"messages"`
}

type notesDoc struct {
	Notes []Note `json:"notes"`
}

// newUserStore creates the backing directory and files. Called by the
// Manager under its cache lock.
func newUserStore(userID, dir string, defaults Defaults, log *logging.Logger) (*UserStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, verrors.StorageIO("create user directory", verrors.WithCause(err), verrors.WithUser(userID))
	}

	s := &UserStore{
		userID:   userID,
		dir:      dir,
		defaults: defaults.applyFallbacks(),
		log:      log,
	}

	if err := s.ensureFile(messagesFile, messagesDoc{Messages: []Message{}}); err != nil {
		return nil, err
	}
	if err := s.ensureFile(notesFile, notesDoc{Notes: []Note{}}); err != nil {
		return nil, err
	}
	return s, nil
}

// UserID returns the owning user's id.
func (s *UserStore) UserID() string {
	return s.userID
}

// Dir returns the store's backing directory.
func (s *UserStore) Dir() string {
	return s.dir
}

// AddMessage appends one conversation turn.
func (s *UserStore) AddMessage(role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		return verrors.InvalidInput("role must be user or assistant")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var doc messagesDoc
	if err := s.readLocked(messagesFile, &doc); err != nil {
		return err
	}
	doc.Messages = append(doc.Messages, Message{
		Timestamp: time.Now().UTC(),
		Role:      role,
		Content:   content,
	})
	return s.writeLocked(messagesFile, doc)
}

// RecentMessages returns the last limit messages in chronological order.
// A limit of zero or less returns the full log.
func (s *UserStore) RecentMessages(limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc messagesDoc
	if err := s.readLocked(messagesFile, &doc); err != nil {
		return nil, err
	}
	msgs := doc.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AddNote appends one scratchpad entry.
func (s *UserStore) AddNote(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc notesDoc
	if err := s.readLocked(notesFile, &doc); err != nil {
		return err
	}
	doc.Notes = append(doc.Notes, Note{
		Timestamp: time.Now().UTC(),
		Content:   content,
	})
	return s.writeLocked(notesFile, doc)
}

// Notes returns the full note log in insertion order.
func (s *UserStore) Notes() ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc notesDoc
	if err := s.readLocked(notesFile, &doc); err != nil {
		return nil, err
	}
	out := make([]Note, len(doc.Notes))
	copy(out, doc.Notes)
	return out, nil
}

// Config returns the user's configuration record, creating it with
// defaults on first access. A malformed record is replaced with defaults
// rather than surfaced: config damage must never reach the scheduling
// loop.
func (s *UserStore) Config() (UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configLocked()
}

// UpdateConfig merges the non-nil fields and refreshes updated_at.
// UserID and CreatedAt are immutable.
func (s *UserStore) UpdateConfig(update ConfigUpdate) (UserConfig, error) {
	if update.HeartbeatIntervalMinutes != nil && *update.HeartbeatIntervalMinutes <= 0 {
		return UserConfig{}, verrors.InvalidInput("heartbeat interval must be positive")
	}
	if update.MaxContextMessages != nil && *update.MaxContextMessages <= 0 {
		return UserConfig{}, verrors.InvalidInput("max context messages must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.configLocked()
	if err != nil {
		return UserConfig{}, err
	}

	if update.Model != nil {
		cfg.Model = *update.Model
	}
	if update.HeartbeatEnabled != nil {
		cfg.HeartbeatEnabled = *update.HeartbeatEnabled
	}
	if update.HeartbeatIntervalMinutes != nil {
		cfg.HeartbeatIntervalMinutes = *update.HeartbeatIntervalMinutes
	}
	if update.MaxContextMessages != nil {
		cfg.MaxContextMessages = *update.MaxContextMessages
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := s.writeLocked(configFile, cfg); err != nil {
		return UserConfig{}, err
	}
	return cfg, nil
}

// configLocked reads or rebuilds the config record. Callers hold s.mu.
func (s *UserStore) configLocked() (UserConfig, error) {
	path := filepath.Join(s.dir, configFile)
	data, err := os.ReadFile(path)

	var cfg UserConfig
	rebuild := false
	switch {
	case os.IsNotExist(err):
		rebuild = true
	case err != nil:
		return UserConfig{}, verrors.StorageIO("read user config", verrors.WithCause(err), verrors.WithUser(s.userID))
	default:
		if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
			s.log.Warn("malformed user config, rebuilding with defaults", map[string]interface{}{
				"user": s.userID, "error": jsonErr,
			})
			rebuild = true
		} else if cfg.HeartbeatIntervalMinutes <= 0 || cfg.UserID != s.userID {
			s.log.Warn("inconsistent user config, rebuilding with defaults", map[string]interface{}{
				"user": s.userID,
			})
			rebuild = true
		}
	}

	if rebuild {
		now := time.Now().UTC()
		cfg = UserConfig{
			UserID:                   s.userID,
			Model:                    s.defaults.Model,
			HeartbeatEnabled:         true,
			HeartbeatIntervalMinutes: s.defaults.HeartbeatIntervalMinutes,
			MaxContextMessages:       s.defaults.MaxContextMessages,
			CreatedAt:                now,
			UpdatedAt:                now,
		}
		if err := s.writeLocked(configFile, cfg); err != nil {
			return UserConfig{}, err
		}
	}
	return cfg, nil
}

// ensureFile writes the empty structure if the file does not exist.
func (s *UserStore) ensureFile(name string, empty interface{}) error {
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return s.writeLocked(name, empty)
}

// readLocked decodes one JSON file. Callers hold s.mu (or run during
// construction before the store is shared).
func (s *UserStore) readLocked(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return verrors.StorageIO("read "+name, verrors.WithCause(err), verrors.WithUser(s.userID))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return verrors.StorageIO("parse "+name, verrors.WithCause(err), verrors.WithUser(s.userID))
	}
	return nil
}

// writeLocked encodes one JSON file in full. Callers hold s.mu (or run
// during construction before the store is shared).
func (s *UserStore) writeLocked(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return verrors.StorageIO("encode "+name, verrors.WithCause(err), verrors.WithUser(s.userID))
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return verrors.StorageIO("write "+name, verrors.WithCause(err), verrors.WithUser(s.userID))
	}
	return nil
}
