package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	verrors "github.com/daemonvigil/vigil/errors"
)

// Config is the application configuration.
type Config struct {
	// DataDir is the root of all durable state (user stores, registry,
	// usage ledger, note index).
	DataDir string `toml:"data_dir"`

	// DefaultModel is used for users with no explicit model choice.
	DefaultModel string `toml:"default_model"`

	// HeartbeatIntervalMinutes is the default heartbeat cadence.
	HeartbeatIntervalMinutes int `toml:"heartbeat_interval_minutes"`

	// MaxContextMessages caps the transcript window sent to the model.
	MaxContextMessages int `toml:"max_context_messages"`

	// MaxTokens caps model output per request.
	MaxTokens int `toml:"max_tokens"`

	// SystemPromptPath optionally points at a file whose contents
	// replace the built-in system prompt.
	SystemPromptPath string `toml:"system_prompt_path"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:                  "data",
		DefaultModel:             "claude-sonnet-4-20250514",
		HeartbeatIntervalMinutes: 15,
		MaxContextMessages:       50,
		MaxTokens:                4096,
		LogLevel:                 "info",
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return verrors.ConfigInvalid("data_dir is required")
	}
	if c.DefaultModel == "" {
		return verrors.ConfigInvalid("default_model is required")
	}
	if c.HeartbeatIntervalMinutes <= 0 {
		return verrors.ConfigInvalid("heartbeat_interval_minutes must be positive")
	}
	if c.MaxContextMessages <= 0 {
		return verrors.ConfigInvalid("max_context_messages must be positive")
	}
	if c.MaxTokens <= 0 {
		return verrors.ConfigInvalid("max_tokens must be positive")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return verrors.ConfigInvalid("log_level must be debug, info, warn, or error")
	}
	return nil
}

// Load reads a TOML config file and merges it over the defaults. A
// missing file yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, verrors.ConfigInvalid("parse config file", verrors.WithCause(err))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// UsersDir returns the directory holding per-user stores.
func (c *Config) UsersDir() string {
	return filepath.Join(c.DataDir, "users")
}

// RegistryPath returns the user registry file path.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "users.json")
}

// UsagePath returns the usage ledger file path.
func (c *Config) UsagePath() string {
	return filepath.Join(c.DataDir, "api_usage.jsonl")
}

// IndexPath returns the note search index directory.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "notes.bleve")
}

// SystemPrompt returns the system prompt text, reading the configured
// file if set, else the fallback.
func (c *Config) SystemPrompt(fallback string) (string, error) {
	if c.SystemPromptPath == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(c.SystemPromptPath)
	if err != nil {
		return "", verrors.ConfigInvalid("read system prompt file", verrors.WithCause(err))
	}
	return string(data), nil
}
