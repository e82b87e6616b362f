package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	verrors "github.com/daemonvigil/vigil/errors"
	"github.com/daemonvigil/vigil/llm"
	"github.com/daemonvigil/vigil/logging"
	"github.com/daemonvigil/vigil/search"
	"github.com/daemonvigil/vigil/store"
	"github.com/daemonvigil/vigil/transport"
	"github.com/daemonvigil/vigil/usage"
)

// DefaultSystemPrompt is used when no prompt file is configured.
const DefaultSystemPrompt = `You are a personal assistant keeping an eye on things for your user.
You check in periodically and help when asked. Be brief and concrete.
Only reach out when you have something genuinely useful to say.`

const heartbeatPrompt = `[Heartbeat] Review the conversation and your notes. ` +
	`If something deserves the user's attention right now, call send_message with it. ` +
	`Otherwise do nothing and stay silent.`

// notesInPrompt caps how many recent notes are folded into the system
// prompt.
const notesInPrompt = 10

// ProviderSource resolves the provider for a model name.
type ProviderSource interface {
	ProviderFor(ctx context.Context, model string) (llm.Provider, error)
}

// Result is the outcome of one heartbeat run.
type Result struct {
	// MessageSent reports whether the model chose to reach out.
	MessageSent bool

	// Message is the delivered text when MessageSent is true.
	Message string

	// Reasoning is the model's free text alongside (or instead of) the
	// tool call.
	Reasoning string
}

// Config configures an Agent.
type Config struct {
	Providers ProviderSource
	Stores    *store.Manager
	Transport transport.Transport
	Usage     *usage.Tracker

	// Notes is optional; when set, scratchpad entries are also indexed
	// for search.
	Notes *search.NoteIndex

	SystemPrompt string
	Logger       *logging.Logger
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Providers == nil {
		return verrors.ConfigInvalid("agent requires a provider source")
	}
	if c.Stores == nil {
		return verrors.ConfigInvalid("agent requires a store manager")
	}
	if c.Transport == nil {
		return verrors.ConfigInvalid("agent requires a transport")
	}
	if c.Usage == nil {
		return verrors.ConfigInvalid("agent requires a usage tracker")
	}
	return nil
}

// Agent runs model calls for users.
type Agent struct {
	providers    ProviderSource
	stores       *store.Manager
	transport    transport.Transport
	usage        *usage.Tracker
	notes        *search.NoteIndex
	systemPrompt string
	log          *logging.Logger
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	return &Agent{
		providers:    cfg.Providers,
		stores:       cfg.Stores,
		transport:    cfg.Transport,
		usage:        cfg.Usage,
		notes:        cfg.Notes,
		systemPrompt: cfg.SystemPrompt,
		log:          cfg.Logger.WithComponent("agent"),
	}, nil
}

// sendMessageTool is offered on the heartbeat path so the model can
// choose between speaking and silence.
var sendMessageTool = llm.Tool{
	Name:        "send_message",
	Description: "Send a message to the user. Only call this when you have something genuinely useful to say.",
	Properties: map[string]interface{}{
		"message": map[string]interface{}{
			"type":        "string",
			"description": "The message to deliver to the user",
		},
	},
	Required: []string{"message"},
}

// RunHeartbeat executes one heartbeat for a user. The model sees the
// recent transcript and notes; if it calls send_message the text is
// delivered over the transport and logged as an assistant turn.
func (a *Agent) RunHeartbeat(ctx context.Context, userID string) (*Result, error) {
	st, err := a.stores.Get(userID)
	if err != nil {
		return nil, err
	}
	cfg, err := st.Config()
	if err != nil {
		return nil, err
	}
	return a.runHeartbeat(ctx, userID, st, cfg)
}

// Execute adapts the agent to the scheduler's executor shape.
func (a *Agent) Execute(ctx context.Context, userID string, st *store.UserStore, cfg store.UserConfig) error {
	_, err := a.runHeartbeat(ctx, userID, st, cfg)
	return err
}

func (a *Agent) runHeartbeat(ctx context.Context, userID string, st *store.UserStore, cfg store.UserConfig) (*Result, error) {
	messages, err := a.transcript(st, cfg.MaxContextMessages)
	if err != nil {
		return nil, err
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: heartbeatPrompt})

	system, err := a.systemPromptFor(st)
	if err != nil {
		return nil, err
	}

	provider, err := a.providers.ProviderFor(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}

	resp, err := provider.Complete(ctx, llm.Request{
		System:   system,
		Messages: messages,
		Tools:    []llm.Tool{sendMessageTool},
	})
	if err != nil {
		return nil, verrors.ExecutionFailed(userID, "model call failed", verrors.WithCause(err))
	}

	a.recordUsage(userID, cfg.Model, usage.RequestHeartbeat, resp)

	result := &Result{Reasoning: resp.Text}
	for _, tc := range resp.ToolCalls {
		if tc.Name != "send_message" {
			a.log.Warn("model called unknown tool", map[string]interface{}{
				"user": userID, "tool": tc.Name,
			})
			continue
		}
		text, _ := tc.Args["message"].(string)
		if text == "" {
			continue
		}

		if err := a.transport.Send(ctx, userID, text); err != nil {
			return result, err
		}
		if err := st.AddMessage(store.RoleAssistant, text); err != nil {
			return result, err
		}
		result.MessageSent = true
		result.Message = text
	}

	if result.MessageSent {
		a.log.Info("heartbeat sent message", map[string]interface{}{"user": userID})
	} else {
		a.log.Debug("heartbeat stayed silent", map[string]interface{}{"user": userID})
	}
	return result, nil
}

// Respond answers one inbound user message. The user turn and the
// reply are both persisted; the reply is returned for delivery by the
// caller.
func (a *Agent) Respond(ctx context.Context, userID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", verrors.InvalidInput("message text is required")
	}

	st, err := a.stores.Get(userID)
	if err != nil {
		return "", err
	}
	cfg, err := st.Config()
	if err != nil {
		return "", err
	}

	if err := st.AddMessage(store.RoleUser, text); err != nil {
		return "", err
	}

	messages, err := a.transcript(st, cfg.MaxContextMessages)
	if err != nil {
		return "", err
	}

	system, err := a.systemPromptFor(st)
	if err != nil {
		return "", err
	}

	provider, err := a.providers.ProviderFor(ctx, cfg.Model)
	if err != nil {
		return "", err
	}

	resp, err := provider.Complete(ctx, llm.Request{
		System:   system,
		Messages: messages,
	})
	if err != nil {
		return "", verrors.ExecutionFailed(userID, "model call failed", verrors.WithCause(err))
	}

	a.recordUsage(userID, cfg.Model, usage.RequestUserResponse, resp)

	reply := resp.Text
	if reply == "" {
		reply = "(no response)"
	}
	if err := st.AddMessage(store.RoleAssistant, reply); err != nil {
		return "", err
	}
	return reply, nil
}

// SaveNote appends a scratchpad entry and indexes it for search.
func (a *Agent) SaveNote(userID, content string) error {
	if strings.TrimSpace(content) == "" {
		return verrors.InvalidInput("note content is required")
	}

	st, err := a.stores.Get(userID)
	if err != nil {
		return err
	}
	if err := st.AddNote(content); err != nil {
		return err
	}
	if a.notes != nil {
		if err := a.notes.Index(userID, content, time.Now().UTC()); err != nil {
			a.log.Warn("note index update failed", map[string]interface{}{
				"user": userID, "error": err,
			})
		}
	}
	return nil
}

// transcript converts the store's recent messages to model turns.
func (a *Agent) transcript(st *store.UserStore, limit int) ([]llm.Message, error) {
	msgs, err := st.RecentMessages(limit)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// systemPromptFor folds the user's recent notes into the base prompt.
func (a *Agent) systemPromptFor(st *store.UserStore) (string, error) {
	notes, err := st.Notes()
	if err != nil {
		return "", err
	}
	if len(notes) == 0 {
		return a.systemPrompt, nil
	}
	if len(notes) > notesInPrompt {
		notes = notes[len(notes)-notesInPrompt:]
	}

	var b strings.Builder
	b.WriteString(a.systemPrompt)
	b.WriteString("\n\nYour recent notes about this user:\n")
	for _, n := range notes {
		fmt.Fprintf(&b, "- [%s] %s\n", n.Timestamp.Format("2006-01-02"), n.Content)
	}
	return b.String(), nil
}

func (a *Agent) recordUsage(userID, model, requestType string, resp *llm.Response) {
	rec := usage.NewRecord(userID, model, requestType, resp.InputTokens, resp.OutputTokens)
	if err := a.usage.Append(rec); err != nil {
		a.log.Warn("usage record dropped", map[string]interface{}{
			"user": userID, "error": err,
		})
	}
}
