package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	verrors "github.com/daemonvigil/vigil/errors"
)

// GoogleProvider backs Gemini models via the official SDK. The provider
// holds no per-request state; Complete configures a fresh model value
// each call so concurrent calls never share one.
type GoogleProvider struct {
	client    *genai.Client
	modelName string
	maxTokens int
	retry     RetryConfig
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Retry     RetryConfig
}

// NewGoogleProvider creates a Gemini provider.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, verrors.InvalidInput("google api key is required")
	}
	if cfg.Model == "" {
		return nil, verrors.InvalidInput("google model is required")
	}
	if cfg.MaxTokens <= 0 {
		return nil, verrors.InvalidInput("google max_tokens is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, verrors.New(verrors.CodeExecutionFailed, "create google client", verrors.WithCause(err))
	}

	return &GoogleProvider{
		client:    client,
		modelName: cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     cfg.Retry,
	}, nil
}

// Close closes the underlying client.
func (p *GoogleProvider) Close() error {
	return p.client.Close()
}

// Complete implements Provider.
func (p *GoogleProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model := p.client.GenerativeModel(p.modelName)
	maxTokens := int32(p.maxTokens)
	model.MaxOutputTokens = &maxTokens
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if len(req.Tools) > 0 {
		funcDecls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			funcDecls = append(funcDecls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  geminiSchema(t),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: funcDecls}}
	}

	cs := model.StartChat()
	history, prompt := geminiHistory(req.Messages)
	cs.History = history

	var resp *genai.GenerateContentResponse
	err := retry(ctx, p.retry, "google", func() error {
		var callErr error
		resp, callErr = cs.SendMessage(ctx, genai.Text(prompt))
		return callErr
	})
	if err != nil {
		return nil, err
	}

	result := &Response{Model: p.modelName}
	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		if candidate.FinishReason != 0 {
			result.StopReason = candidate.FinishReason.String()
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch v := part.(type) {
				case genai.Text:
					result.Text += string(v)
				case genai.FunctionCall:
					result.ToolCalls = append(result.ToolCalls, ToolCall{
						ID:   fmt.Sprintf("call_%s", v.Name),
						Name: v.Name,
						Args: v.Args,
					})
				}
			}
		}
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

// geminiHistory converts turns to chat history, pulling the last user
// turn out as the prompt to send; it is not kept in history.
func geminiHistory(messages []Message) ([]*genai.Content, string) {
	history := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	var prompt string
	if n := len(history); n > 0 && history[n-1].Role == "user" {
		last := history[n-1]
		history = history[:n-1]
		if len(last.Parts) > 0 {
			if text, ok := last.Parts[0].(genai.Text); ok {
				prompt = string(text)
			}
		}
	}
	return history, prompt
}

// geminiSchema converts a tool's parameter schema to the SDK's Schema type.
func geminiSchema(t Tool) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema),
		Required:   t.Required,
	}
	for name, prop := range t.Properties {
		propMap, ok := prop.(map[string]interface{})
		if !ok {
			continue
		}
		schema.Properties[name] = geminiProperty(propMap)
	}
	return schema
}

func geminiProperty(prop map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{}

	if typ, ok := prop["type"].(string); ok {
		switch typ {
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		case "array":
			schema.Type = genai.TypeArray
			if items, ok := prop["items"].(map[string]interface{}); ok {
				schema.Items = geminiProperty(items)
			}
		case "object":
			schema.Type = genai.TypeObject
			if props, ok := prop["properties"].(map[string]interface{}); ok {
				schema.Properties = make(map[string]*genai.Schema)
				for name, p := range props {
					if propMap, ok := p.(map[string]interface{}); ok {
						schema.Properties[name] = geminiProperty(propMap)
					}
				}
			}
		}
	}
	if desc, ok := prop["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := prop["enum"].([]interface{}); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	return schema
}
