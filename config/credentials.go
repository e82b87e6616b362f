package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when the credentials file is
// readable by group or others.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// Credentials holds API keys loaded from credentials.toml.
type Credentials struct {
	providers map[string]string
}

// CredentialPaths returns the credential file locations in priority
// order.
func CredentialPaths() []string {
	paths := []string{"credentials.toml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "vigil", "credentials.toml"))
		paths = append(paths, filepath.Join(home, ".vigil", "credentials.toml"))
	}
	return paths
}

// LoadCredentials loads credentials from the first available standard
// location. No file found is not an error; env vars still apply.
func LoadCredentials() (*Credentials, string, error) {
	for _, path := range CredentialPaths() {
		if _, err := os.Stat(path); err == nil {
			creds, err := LoadCredentialsFile(path)
			if err != nil {
				return nil, path, err
			}
			return creds, path, nil
		}
	}
	return &Credentials{providers: map[string]string{}}, "", nil
}

// LoadCredentialsFile loads credentials from a specific file. The file
// must be mode 0400 on Unix.
func LoadCredentialsFile(path string) (*Credentials, error) {
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		mode := info.Mode().Perm()
		if mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var rawData map[string]interface{}
	if _, err := toml.DecodeFile(path, &rawData); err != nil {
		return nil, err
	}

	creds := &Credentials{providers: make(map[string]string)}
	for key, value := range rawData {
		section, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		apiKey, _ := section["api_key"].(string)
		if apiKey != "" {
			creds.providers[key] = apiKey
		}
	}
	return creds, nil
}

// APIKey returns the key for a provider. Environment variables take
// priority over the file so deployments can inject keys directly.
func (c *Credentials) APIKey(provider string) string {
	if key := os.Getenv(envVarForProvider(provider)); key != "" {
		return key
	}
	if c == nil {
		return ""
	}
	if key, ok := c.providers[provider]; ok {
		return key
	}
	normalized := strings.ToLower(strings.ReplaceAll(provider, "-", ""))
	return c.providers[normalized]
}

func envVarForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "telegram":
		return "TELEGRAM_BOT_TOKEN"
	default:
		return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	}
}
