package llm

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	verrors "github.com/daemonvigil/vigil/errors"
)

// OpenAIProvider backs GPT models via the official SDK.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
	retry     RetryConfig
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // optional custom endpoint
	Model     string
	MaxTokens int
	Retry     RetryConfig
}

// NewOpenAIProvider creates a GPT provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, verrors.InvalidInput("openai api key is required")
	}
	if cfg.Model == "" {
		return nil, verrors.InvalidInput("openai model is required")
	}
	if cfg.MaxTokens <= 0 {
		return nil, verrors.InvalidInput("openai max_tokens is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIProvider{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     cfg.Retry,
	}, nil
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}

	maxTokens := int64(p.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(p.model),
		Messages:  messages,
		MaxTokens: openai.Int(maxTokens),
	}
	for _, t := range req.Tools {
		schemaJSON, _ := json.Marshal(toolSchema(t))
		var schema shared.FunctionParameters
		json.Unmarshal(schemaJSON, &schema)

		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  schema,
			},
		})
	}

	var resp *openai.ChatCompletion
	err := retry(ctx, p.retry, "openai", func() error {
		var callErr error
		resp, callErr = p.client.Chat.Completions.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	result := &Response{
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		result.Text = choice.Message.Content
		result.StopReason = string(choice.FinishReason)

		for _, tc := range choice.Message.ToolCalls {
			var args map[string]interface{}
			json.Unmarshal([]byte(tc.Function.Arguments), &args)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: args,
			})
		}
	}
	return result, nil
}
