package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DefaultModel != "claude-sonnet-4-20250514" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.HeartbeatIntervalMinutes != 15 {
		t.Errorf("HeartbeatIntervalMinutes = %d, want 15", cfg.HeartbeatIntervalMinutes)
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.toml")
	body := `data_dir = "/var/lib/vigil"
heartbeat_interval_minutes = 30
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DataDir != "/var/lib/vigil" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.HeartbeatIntervalMinutes != 30 {
		t.Errorf("HeartbeatIntervalMinutes = %d, want 30", cfg.HeartbeatIntervalMinutes)
	}
	// Untouched fields keep defaults.
	if cfg.MaxContextMessages != 50 {
		t.Errorf("MaxContextMessages = %d, want 50", cfg.MaxContextMessages)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.toml")
	body := `heartbeat_interval_minutes = -5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for negative interval")
	}
}

func TestConfigPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/srv/vigil"

	if got := cfg.UsersDir(); got != filepath.Join("/srv/vigil", "users") {
		t.Errorf("UsersDir = %q", got)
	}
	if got := cfg.RegistryPath(); got != filepath.Join("/srv/vigil", "users.json") {
		t.Errorf("RegistryPath = %q", got)
	}
	if got := cfg.UsagePath(); got != filepath.Join("/srv/vigil", "api_usage.jsonl") {
		t.Errorf("UsagePath = %q", got)
	}
}

func TestSystemPrompt(t *testing.T) {
	cfg := DefaultConfig()

	got, err := cfg.SystemPrompt("built-in")
	if err != nil {
		t.Fatalf("SystemPrompt error: %v", err)
	}
	if got != "built-in" {
		t.Errorf("SystemPrompt = %q, want fallback", got)
	}

	path := filepath.Join(t.TempDir(), "prompt.txt")
	os.WriteFile(path, []byte("custom prompt"), 0o644)
	cfg.SystemPromptPath = path

	got, err = cfg.SystemPrompt("built-in")
	if err != nil {
		t.Fatalf("SystemPrompt error: %v", err)
	}
	if got != "custom prompt" {
		t.Errorf("SystemPrompt = %q", got)
	}
}

func TestLoadCredentialsFile_PermissionCheck(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}

	path := filepath.Join(t.TempDir(), "credentials.toml")
	body := `[anthropic]
api_key = "sk-test"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadCredentialsFile(path)
	if !errors.Is(err, ErrInsecurePermissions) {
		t.Errorf("expected ErrInsecurePermissions, got %v", err)
	}

	if err := os.Chmod(path, 0o400); err != nil {
		t.Fatal(err)
	}
	creds, err := LoadCredentialsFile(path)
	if err != nil {
		t.Fatalf("LoadCredentialsFile error: %v", err)
	}
	if got := creds.APIKey("anthropic"); got != "sk-test" {
		t.Errorf("APIKey = %q", got)
	}
}

func TestCredentials_EnvOverride(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")

	creds := &Credentials{providers: map[string]string{"anthropic": "sk-file"}}
	if got := creds.APIKey("anthropic"); got != "sk-env" {
		t.Errorf("APIKey = %q, want env value", got)
	}
}

func TestCredentials_NilSafe(t *testing.T) {
	var creds *Credentials
	if got := creds.APIKey("openai"); got != "" {
		t.Errorf("APIKey on nil = %q, want empty", got)
	}
}
