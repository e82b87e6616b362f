package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daemonvigil/vigil/registry"
	"github.com/daemonvigil/vigil/scheduler"
	"github.com/daemonvigil/vigil/search"
	"github.com/daemonvigil/vigil/store"
	"github.com/daemonvigil/vigil/usage"
)

// fakeAssistant scripts the direct response path and writes notes
// straight to the store.
type fakeAssistant struct {
	stores *store.Manager
	reply  string
	err    error

	mu        sync.Mutex
	responded []string
}

func (f *fakeAssistant) Respond(ctx context.Context, userID, text string) (string, error) {
	f.mu.Lock()
	f.responded = append(f.responded, text)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeAssistant) SaveNote(userID, content string) error {
	st, err := f.stores.Get(userID)
	if err != nil {
		return err
	}
	return st.AddNote(content)
}

// fakeControl records scheduler calls.
type fakeControl struct {
	mu         sync.Mutex
	added      map[string]time.Duration
	addCalls   int
	enabled    map[string]bool
	paused     []string
	resumed    []string
	triggered  []string
	triggerErr error
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		added:   make(map[string]time.Duration),
		enabled: make(map[string]bool),
	}
}

func (f *fakeControl) AddUser(userID string, interval time.Duration, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added[userID] = interval
	f.addCalls++
	f.enabled[userID] = enabled
	return nil
}

func (f *fakeControl) PauseUser(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = append(f.paused, userID)
	f.enabled[userID] = false
}

func (f *fakeControl) ResumeUser(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = append(f.resumed, userID)
	f.enabled[userID] = true
}

func (f *fakeControl) IsEnabled(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	enabled, ok := f.enabled[userID]
	if !ok {
		return true
	}
	return enabled
}

func (f *fakeControl) GetStatus(userID string) scheduler.Status {
	f.mu.Lock()
	_, armed := f.added[userID]
	f.mu.Unlock()
	return scheduler.Status{Enabled: f.IsEnabled(userID), JobExists: armed}
}

func (f *fakeControl) TriggerNow(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, userID)
	return f.triggerErr
}

type fixture struct {
	bot       *Bot
	registry  registry.Registry
	stores    *store.Manager
	assistant *fakeAssistant
	control   *fakeControl
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	reg := registry.NewMemoryRegistry()
	stores, err := store.NewManager(store.ManagerConfig{BaseDir: filepath.Join(dir, "users")})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	tracker, err := usage.NewTracker(filepath.Join(dir, "api_usage.jsonl"))
	if err != nil {
		t.Fatalf("NewTracker error: %v", err)
	}

	assistant := &fakeAssistant{stores: stores, reply: "hello back"}
	control := newFakeControl()

	b, err := New(Config{
		Registry:  reg,
		Stores:    stores,
		Scheduler: control,
		Assistant: assistant,
		Usage:     tracker,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return &fixture{bot: b, registry: reg, stores: stores, assistant: assistant, control: control}
}

func TestHandleMessage_RegistersAndResponds(t *testing.T) {
	f := newFixture(t)

	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "hi there")
	if reply != "hello back" {
		t.Errorf("reply = %q", reply)
	}

	user, err := f.registry.Get("42")
	if err != nil {
		t.Fatalf("user not registered: %v", err)
	}
	if user.DisplayName != "alice" || user.Status != registry.StatusActive {
		t.Errorf("user = %+v", user)
	}
	if len(f.assistant.responded) != 1 || f.assistant.responded[0] != "hi there" {
		t.Errorf("responded = %v", f.assistant.responded)
	}
}

func TestHandleMessage_ArmsNewUsersOnFirstContact(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleMessage(context.Background(), "42", "alice", "hi there")

	// First contact arms a job from the persisted config defaults.
	if got := f.control.added["42"]; got != 15*time.Minute {
		t.Errorf("armed interval = %v, want 15m", got)
	}
	if !f.control.enabled["42"] {
		t.Error("new user must be armed enabled")
	}

	// Later messages see an existing job and leave it alone.
	f.bot.HandleMessage(context.Background(), "42", "alice", "still here")
	if f.control.addCalls != 1 {
		t.Errorf("AddUser calls = %d, want 1", f.control.addCalls)
	}
}

func TestHandleMessage_ApologyOnFailure(t *testing.T) {
	f := newFixture(t)
	f.assistant.err = errors.New("model down")

	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "hi")
	if !strings.Contains(reply, "Sorry") {
		t.Errorf("reply = %q, want apology", reply)
	}
}

func TestHandleMessage_BannedUserDropped(t *testing.T) {
	f := newFixture(t)
	f.registry.Register("42", "alice")
	f.registry.SetStatus("42", registry.StatusBanned)

	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "hi")
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
	if len(f.assistant.responded) != 0 {
		t.Error("assistant must not run for banned users")
	}
}

func TestCommand_PausePersistsAndPauses(t *testing.T) {
	f := newFixture(t)

	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...pause")
	if !strings.Contains(reply, "paused") {
		t.Errorf("reply = %q", reply)
	}
	if len(f.control.paused) != 1 {
		t.Error("scheduler not paused")
	}

	st, _ := f.stores.Get("42")
	cfg, _ := st.Config()
	if cfg.HeartbeatEnabled {
		t.Error("pause must persist heartbeat_enabled=false")
	}
}

func TestCommand_ResumePersistsAndResumes(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleMessage(context.Background(), "42", "alice", "...pause")
	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...resume")
	if !strings.Contains(reply, "resumed") {
		t.Errorf("reply = %q", reply)
	}
	if len(f.control.resumed) != 1 {
		t.Error("scheduler not resumed")
	}

	st, _ := f.stores.Get("42")
	cfg, _ := st.Config()
	if !cfg.HeartbeatEnabled {
		t.Error("resume must persist heartbeat_enabled=true")
	}
}

func TestCommand_IntervalPersistsAndRearms(t *testing.T) {
	f := newFixture(t)

	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...interval 30")
	if !strings.Contains(reply, "30 minutes") {
		t.Errorf("reply = %q", reply)
	}

	st, _ := f.stores.Get("42")
	cfg, _ := st.Config()
	if cfg.HeartbeatIntervalMinutes != 30 {
		t.Errorf("persisted interval = %d, want 30", cfg.HeartbeatIntervalMinutes)
	}
	if f.control.added["42"] != 30*time.Minute {
		t.Errorf("re-armed interval = %v, want 30m", f.control.added["42"])
	}
}

func TestCommand_IntervalRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	for _, cmd := range []string{"...interval", "...interval zero", "...interval -5", "...interval 0"} {
		reply := f.bot.HandleMessage(context.Background(), "42", "alice", cmd)
		if !strings.Contains(reply, "Usage") {
			t.Errorf("%q reply = %q, want usage hint", cmd, reply)
		}
	}

	st, _ := f.stores.Get("42")
	cfg, _ := st.Config()
	if cfg.HeartbeatIntervalMinutes != 15 {
		t.Errorf("interval changed to %d by invalid input", cfg.HeartbeatIntervalMinutes)
	}
}

func TestCommand_Heartbeat(t *testing.T) {
	f := newFixture(t)

	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...heartbeat")
	if !strings.Contains(reply, "triggered") {
		t.Errorf("reply = %q", reply)
	}
	if len(f.control.triggered) != 1 || f.control.triggered[0] != "42" {
		t.Errorf("triggered = %v", f.control.triggered)
	}
}

func TestCommand_HeartbeatFailure(t *testing.T) {
	f := newFixture(t)
	f.control.triggerErr = errors.New("executor blew up")

	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...heartbeat")
	if !strings.Contains(reply, "failed") {
		t.Errorf("reply = %q", reply)
	}
}

func TestCommand_NoteAndNotes(t *testing.T) {
	f := newFixture(t)

	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...note water the plants")
	if reply != "Noted." {
		t.Errorf("reply = %q", reply)
	}

	reply = f.bot.HandleMessage(context.Background(), "42", "alice", "...notes")
	if !strings.Contains(reply, "water the plants") {
		t.Errorf("reply = %q", reply)
	}
}

func TestCommand_NoteRequiresText(t *testing.T) {
	f := newFixture(t)
	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...note   ")
	if !strings.Contains(reply, "Usage") {
		t.Errorf("reply = %q", reply)
	}
}

func TestCommand_NotesEmpty(t *testing.T) {
	f := newFixture(t)
	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...notes")
	if !strings.Contains(reply, "No notes yet") {
		t.Errorf("reply = %q", reply)
	}
}

func TestCommand_NotesSearchesIndex(t *testing.T) {
	f := newFixture(t)

	idx, err := search.NewMemNoteIndex()
	if err != nil {
		t.Fatalf("NewMemNoteIndex error: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	b, err := New(Config{
		Registry:  f.registry,
		Stores:    f.stores,
		Scheduler: f.control,
		Assistant: f.assistant,
		Usage:     f.bot.usage,
		Notes:     idx,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	idx.Index("42", "dentist appointment friday", time.Now().UTC())
	idx.Index("42", "water the tomato plants", time.Now().UTC())

	reply := b.HandleMessage(context.Background(), "42", "alice", "...notes dentist")
	if !strings.Contains(reply, "dentist appointment friday") {
		t.Errorf("reply = %q", reply)
	}
	if strings.Contains(reply, "tomato") {
		t.Errorf("unrelated note leaked into results: %q", reply)
	}
}

func TestCommand_Status(t *testing.T) {
	f := newFixture(t)

	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...status")
	if !strings.Contains(reply, "Status Report") {
		t.Errorf("reply = %q", reply)
	}
	if !strings.Contains(reply, "Enabled, every 15 minutes") {
		t.Errorf("reply missing heartbeat state: %q", reply)
	}
}

func TestCommand_StatusWhenPaused(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleMessage(context.Background(), "42", "alice", "...pause")
	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...status")
	if !strings.Contains(reply, "Paused") {
		t.Errorf("reply = %q", reply)
	}
}

func TestCommand_UnknownAndHelp(t *testing.T) {
	f := newFixture(t)

	reply := f.bot.HandleMessage(context.Background(), "42", "alice", "...frobnicate")
	if !strings.Contains(reply, "Unknown command") {
		t.Errorf("reply = %q", reply)
	}

	reply = f.bot.HandleMessage(context.Background(), "42", "alice", "...help")
	if !strings.Contains(reply, "Commands:") {
		t.Errorf("reply = %q", reply)
	}
}

func TestHandleMessage_UpdatesLastSeen(t *testing.T) {
	f := newFixture(t)

	f.registry.Register("42", "alice")
	before, _ := f.registry.Get("42")

	time.Sleep(5 * time.Millisecond)
	f.bot.HandleMessage(context.Background(), "42", "alice", "hi")

	after, _ := f.registry.Get("42")
	if !after.LastSeen.After(before.LastSeen) {
		t.Error("last_seen not updated by inbound message")
	}
}
