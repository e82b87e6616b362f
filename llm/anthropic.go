package llm

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	verrors "github.com/daemonvigil/vigil/errors"
)

// AnthropicProvider backs Claude models via the official SDK.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	retry     RetryConfig
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string // optional custom endpoint
	Model     string
	MaxTokens int
	Retry     RetryConfig
}

// NewAnthropicProvider creates a Claude provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, verrors.InvalidInput("anthropic api key is required")
	}
	if cfg.Model == "" {
		return nil, verrors.InvalidInput("anthropic model is required")
	}
	if cfg.MaxTokens <= 0 {
		return nil, verrors.InvalidInput("anthropic max_tokens is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     cfg.Retry,
	}, nil
}

// Complete implements Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(p.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Properties,
				},
			},
		})
	}

	var resp *anthropic.Message
	err := retry(ctx, p.retry, "anthropic", func() error {
		var callErr error
		resp, callErr = p.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	result := &Response{
		StopReason:   string(resp.StopReason),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Model:        string(resp.Model),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Text += block.Text
		case "tool_use":
			var args map[string]interface{}
			if block.Input != nil {
				json.Unmarshal(block.Input, &args)
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			})
		}
	}
	return result, nil
}
