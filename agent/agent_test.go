package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	verrors "github.com/daemonvigil/vigil/errors"
	"github.com/daemonvigil/vigil/llm"
	"github.com/daemonvigil/vigil/store"
	"github.com/daemonvigil/vigil/transport"
	"github.com/daemonvigil/vigil/usage"
)

// staticSource hands every model the same provider.
type staticSource struct {
	provider llm.Provider
}

func (s staticSource) ProviderFor(ctx context.Context, model string) (llm.Provider, error) {
	return s.provider, nil
}

type fixture struct {
	agent     *Agent
	mock      *llm.MockProvider
	transport *transport.MemoryTransport
	stores    *store.Manager
	usage     *usage.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	stores, err := store.NewManager(store.ManagerConfig{BaseDir: filepath.Join(dir, "users")})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	tracker, err := usage.NewTracker(filepath.Join(dir, "api_usage.jsonl"))
	if err != nil {
		t.Fatalf("NewTracker error: %v", err)
	}

	mock := llm.NewMockProvider()
	tr := transport.NewMemoryTransport()

	a, err := New(Config{
		Providers: staticSource{provider: mock},
		Stores:    stores,
		Transport: tr,
		Usage:     tracker,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return &fixture{agent: a, mock: mock, transport: tr, stores: stores, usage: tracker}
}

func TestRunHeartbeat_SilentWhenNoToolCall(t *testing.T) {
	f := newFixture(t)
	f.mock.Text = "nothing worth saying"

	result, err := f.agent.RunHeartbeat(context.Background(), "42")
	if err != nil {
		t.Fatalf("RunHeartbeat error: %v", err)
	}
	if result.MessageSent {
		t.Error("expected no message without a tool call")
	}
	if result.Reasoning != "nothing worth saying" {
		t.Errorf("Reasoning = %q", result.Reasoning)
	}
	if len(f.transport.Sent()) != 0 {
		t.Error("transport must stay untouched on a silent heartbeat")
	}
}

func TestRunHeartbeat_DeliversToolMessage(t *testing.T) {
	f := newFixture(t)
	f.mock.ToolCalls = []llm.ToolCall{{
		Name: "send_message",
		Args: map[string]interface{}{"message": "your meeting starts in 10 minutes"},
	}}

	result, err := f.agent.RunHeartbeat(context.Background(), "42")
	if err != nil {
		t.Fatalf("RunHeartbeat error: %v", err)
	}
	if !result.MessageSent {
		t.Fatal("expected a delivered message")
	}

	sent := f.transport.SentTo("42")
	if len(sent) != 1 || sent[0].Text != "your meeting starts in 10 minutes" {
		t.Errorf("delivered = %+v", sent)
	}

	// The delivered text becomes an assistant turn.
	st, _ := f.stores.Get("42")
	msgs, _ := st.RecentMessages(0)
	if len(msgs) != 1 || msgs[0].Role != store.RoleAssistant {
		t.Errorf("transcript = %+v", msgs)
	}
}

func TestRunHeartbeat_OffersSendMessageTool(t *testing.T) {
	f := newFixture(t)

	if _, err := f.agent.RunHeartbeat(context.Background(), "42"); err != nil {
		t.Fatalf("RunHeartbeat error: %v", err)
	}

	req := f.mock.LastRequest()
	if len(req.Tools) != 1 || req.Tools[0].Name != "send_message" {
		t.Errorf("Tools = %+v", req.Tools)
	}
	last := req.Messages[len(req.Messages)-1]
	if !strings.Contains(last.Content, "Heartbeat") {
		t.Errorf("last turn should be the heartbeat prompt, got %q", last.Content)
	}
}

func TestRunHeartbeat_RecordsUsage(t *testing.T) {
	f := newFixture(t)
	f.mock.InputTokens = 120
	f.mock.OutputTokens = 30

	if _, err := f.agent.RunHeartbeat(context.Background(), "42"); err != nil {
		t.Fatalf("RunHeartbeat error: %v", err)
	}

	stats, err := f.usage.Stats("42", 1)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.RequestCount != 1 || stats.InputTokens != 120 || stats.OutputTokens != 30 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunHeartbeat_ModelFailure(t *testing.T) {
	f := newFixture(t)
	f.mock.Err = errors.New("boom")

	_, err := f.agent.RunHeartbeat(context.Background(), "42")
	if !verrors.HasCode(err, verrors.CodeExecutionFailed) {
		t.Errorf("expected execution_failed, got %v", err)
	}
	if len(f.transport.Sent()) != 0 {
		t.Error("nothing must be delivered on model failure")
	}
}

func TestRunHeartbeat_TransportFailure(t *testing.T) {
	f := newFixture(t)
	f.mock.ToolCalls = []llm.ToolCall{{
		Name: "send_message",
		Args: map[string]interface{}{"message": "hello"},
	}}
	f.transport.FailWith = errors.New("network down")

	_, err := f.agent.RunHeartbeat(context.Background(), "42")
	if !verrors.HasCode(err, verrors.CodeTransportFailed) {
		t.Errorf("expected transport_failed, got %v", err)
	}

	// An undelivered message must not be logged as an assistant turn.
	st, _ := f.stores.Get("42")
	msgs, _ := st.RecentMessages(0)
	if len(msgs) != 0 {
		t.Errorf("transcript = %+v, want empty", msgs)
	}
}

func TestRunHeartbeat_IgnoresUnknownTool(t *testing.T) {
	f := newFixture(t)
	f.mock.ToolCalls = []llm.ToolCall{{
		Name: "delete_everything",
		Args: map[string]interface{}{},
	}}

	result, err := f.agent.RunHeartbeat(context.Background(), "42")
	if err != nil {
		t.Fatalf("RunHeartbeat error: %v", err)
	}
	if result.MessageSent {
		t.Error("unknown tools must not produce deliveries")
	}
}

func TestRespond_PersistsBothTurns(t *testing.T) {
	f := newFixture(t)
	f.mock.Text = "hi there"

	reply, err := f.agent.Respond(context.Background(), "42", "hello")
	if err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if reply != "hi there" {
		t.Errorf("reply = %q", reply)
	}

	st, _ := f.stores.Get("42")
	msgs, _ := st.RecentMessages(0)
	if len(msgs) != 2 {
		t.Fatalf("transcript len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[1].Role != store.RoleAssistant {
		t.Errorf("transcript roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestRespond_NoToolsOffered(t *testing.T) {
	f := newFixture(t)

	if _, err := f.agent.Respond(context.Background(), "42", "hello"); err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if len(f.mock.LastRequest().Tools) != 0 {
		t.Error("direct responses must not offer tools")
	}
}

func TestRespond_RejectsEmptyText(t *testing.T) {
	f := newFixture(t)
	if _, err := f.agent.Respond(context.Background(), "42", "   "); err == nil {
		t.Error("expected error for blank message")
	}
}

func TestRespond_ErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.mock.Err = errors.New("model down")

	_, err := f.agent.Respond(context.Background(), "42", "hello")
	if !verrors.HasCode(err, verrors.CodeExecutionFailed) {
		t.Errorf("expected execution_failed, got %v", err)
	}
}

func TestSystemPromptIncludesNotes(t *testing.T) {
	f := newFixture(t)

	if err := f.agent.SaveNote("42", "user prefers morning check-ins"); err != nil {
		t.Fatalf("SaveNote error: %v", err)
	}

	if _, err := f.agent.RunHeartbeat(context.Background(), "42"); err != nil {
		t.Fatalf("RunHeartbeat error: %v", err)
	}
	if !strings.Contains(f.mock.LastRequest().System, "morning check-ins") {
		t.Error("system prompt should include saved notes")
	}
}
