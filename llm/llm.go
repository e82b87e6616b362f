package llm

import (
	"context"
	"strings"
	"time"

	verrors "github.com/daemonvigil/vigil/errors"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// Tool describes one tool the model may call.
type Tool struct {
	Name        string
	Description string

	// Properties maps parameter name to a JSON-Schema fragment
	// (e.g. {"type": "string", "description": "..."}).
	Properties map[string]interface{}

	// Required lists mandatory parameter names.
	Required []string
}

// ToolCall is one tool invocation returned by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Request is one completion request.
type Request struct {
	System    string
	Messages  []Message
	Tools     []Tool
	MaxTokens int
}

// Validate checks the request.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return verrors.InvalidInput("request needs at least one message")
	}
	for _, m := range r.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return verrors.InvalidInput("message role must be user or assistant")
		}
	}
	return nil
}

// Response is one completion response.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	StopReason   string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Provider is a model backend.
type Provider interface {
	// Complete sends one request and returns the model's response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// RetryConfig controls retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries  int           // default 5
	InitBackoff time.Duration // default 1s
	MaxBackoff  time.Duration // default 60s
}

const (
	defaultMaxRetries  = 5
	defaultInitBackoff = time.Second
	defaultMaxBackoff  = 60 * time.Second
	backoffFactor      = 2.0
)

// withDefaults fills zero fields.
func (rc RetryConfig) withDefaults() RetryConfig {
	if rc.MaxRetries <= 0 {
		rc.MaxRetries = defaultMaxRetries
	}
	if rc.InitBackoff <= 0 {
		rc.InitBackoff = defaultInitBackoff
	}
	if rc.MaxBackoff <= 0 {
		rc.MaxBackoff = defaultMaxBackoff
	}
	return rc
}

// retry runs fn with exponential backoff on retryable errors. Billing
// errors and non-retryable errors fail immediately.
func retry(ctx context.Context, rc RetryConfig, vendor string, fn func() error) error {
	rc = rc.withDefaults()
	backoff := rc.InitBackoff

	var err error
	for attempt := 0; attempt <= rc.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if isBillingError(err) {
			return verrors.Newf(verrors.CodeExecutionFailed, "%s billing error (fatal): %v", vendor, err)
		}
		if !isRetryableError(err) {
			return verrors.New(verrors.CodeExecutionFailed, vendor+" request failed", verrors.WithCause(err))
		}
		if attempt == rc.MaxRetries {
			return verrors.Newf(verrors.CodeExecutionFailed, "%s request failed after %d retries: %v", vendor, rc.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > rc.MaxBackoff {
			backoff = rc.MaxBackoff
		}
	}
	return err
}

// isRetryableError matches rate limits and transient server errors.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "too many requests", "overloaded",
		"500", "502", "503", "504",
		"internal server error", "bad gateway",
		"service unavailable", "gateway timeout", "temporarily unavailable",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// isBillingError matches billing, payment, and quota errors.
func isBillingError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, marker := range []string{
		"billing", "payment", "credits", "quota exceeded",
		"insufficient", "402", "subscription", "expired",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// toolSchema assembles the JSON-Schema object for a tool's parameters.
func toolSchema(t Tool) map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": t.Properties,
		"required":   t.Required,
	}
}

// --- Mock provider for tests ---

// MockProvider is a scripted Provider for tests.
type MockProvider struct {
	Text         string
	ToolCalls    []ToolCall
	StopReason   string
	InputTokens  int
	OutputTokens int
	Err          error

	// CompleteFunc overrides the scripted behavior when set.
	CompleteFunc func(ctx context.Context, req Request) (*Response, error)

	calls   int
	lastReq *Request
}

// NewMockProvider creates a mock that returns empty successful responses.
func NewMockProvider() *MockProvider {
	return &MockProvider{StopReason: "end_turn"}
}

// Complete implements Provider.
func (p *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	p.calls++
	p.lastReq = &req

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return &Response{
		Text:         p.Text,
		ToolCalls:    p.ToolCalls,
		StopReason:   p.StopReason,
		InputTokens:  p.InputTokens,
		OutputTokens: p.OutputTokens,
		Model:        "mock",
	}, nil
}

// Calls returns the number of Complete invocations.
func (p *MockProvider) Calls() int {
	return p.calls
}

// LastRequest returns the most recent request.
func (p *MockProvider) LastRequest() *Request {
	return p.lastReq
}
