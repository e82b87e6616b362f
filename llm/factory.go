package llm

import (
	"context"
	"strings"
	"sync"

	verrors "github.com/daemonvigil/vigil/errors"
)

// Vendors.
const (
	VendorAnthropic = "anthropic"
	VendorOpenAI    = "openai"
	VendorGoogle    = "google"
)

// VendorForModel infers the vendor from a model name. Unknown names
// default to anthropic.
func VendorForModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return VendorOpenAI
	case strings.HasPrefix(m, "gemini"):
		return VendorGoogle
	default:
		return VendorAnthropic
	}
}

// Keys holds the API keys for each vendor. Empty keys disable that
// vendor.
type Keys struct {
	Anthropic string
	OpenAI    string
	Google    string
}

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	Keys      Keys
	MaxTokens int // default 4096
	Retry     RetryConfig
}

const defaultMaxTokens = 4096

// Factory builds providers on demand, one per model, and caches them.
// Users pick their model per conversation, so the set of live
// providers follows the registry.
type Factory struct {
	mu        sync.Mutex
	keys      Keys
	maxTokens int
	retry     RetryConfig
	providers map[string]Provider
}

// NewFactory creates a provider factory.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Factory{
		keys:      cfg.Keys,
		maxTokens: cfg.MaxTokens,
		retry:     cfg.Retry,
		providers: make(map[string]Provider),
	}
}

// ProviderFor returns the provider for a model, creating it on first
// use. Returns a config error if the vendor's API key is missing.
func (f *Factory) ProviderFor(ctx context.Context, model string) (Provider, error) {
	if model == "" {
		return nil, verrors.InvalidInput("model name is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.providers[model]; ok {
		return p, nil
	}

	var (
		p   Provider
		err error
	)
	switch VendorForModel(model) {
	case VendorOpenAI:
		if f.keys.OpenAI == "" {
			return nil, verrors.ConfigInvalid("openai api key not configured")
		}
		p, err = NewOpenAIProvider(OpenAIConfig{
			APIKey:    f.keys.OpenAI,
			Model:     model,
			MaxTokens: f.maxTokens,
			Retry:     f.retry,
		})
	case VendorGoogle:
		if f.keys.Google == "" {
			return nil, verrors.ConfigInvalid("google api key not configured")
		}
		p, err = NewGoogleProvider(ctx, GoogleConfig{
			APIKey:    f.keys.Google,
			Model:     model,
			MaxTokens: f.maxTokens,
			Retry:     f.retry,
		})
	default:
		if f.keys.Anthropic == "" {
			return nil, verrors.ConfigInvalid("anthropic api key not configured")
		}
		p, err = NewAnthropicProvider(AnthropicConfig{
			APIKey:    f.keys.Anthropic,
			Model:     model,
			MaxTokens: f.maxTokens,
			Retry:     f.retry,
		})
	}
	if err != nil {
		return nil, err
	}

	f.providers[model] = p
	return p, nil
}
