package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	verrors "github.com/daemonvigil/vigil/errors"
	"github.com/daemonvigil/vigil/logging"
	"github.com/daemonvigil/vigil/registry"
	"github.com/daemonvigil/vigil/scheduler"
	"github.com/daemonvigil/vigil/search"
	"github.com/daemonvigil/vigil/store"
	"github.com/daemonvigil/vigil/usage"
)

// commandPrefix marks admin commands in inbound text.
const commandPrefix = "..."

// apology is returned when the direct response path fails.
const apology = "Sorry, something went wrong handling that. Please try again."

// Assistant is the model-backed collaborator behind the direct path.
type Assistant interface {
	Respond(ctx context.Context, userID, text string) (string, error)
	SaveNote(userID, content string) error
}

// HeartbeatControl is the scheduler surface the command layer drives.
type HeartbeatControl interface {
	AddUser(userID string, interval time.Duration, enabled bool) error
	PauseUser(userID string)
	ResumeUser(userID string)
	IsEnabled(userID string) bool
	GetStatus(userID string) scheduler.Status
	TriggerNow(ctx context.Context, userID string) error
}

// Config configures a Bot.
type Config struct {
	Registry  registry.Registry
	Stores    *store.Manager
	Scheduler HeartbeatControl
	Assistant Assistant
	Usage     *usage.Tracker

	// Notes is optional; when set, "...notes <query>" searches the
	// index instead of listing recent entries.
	Notes *search.NoteIndex

	Logger *logging.Logger
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Registry == nil {
		return verrors.ConfigInvalid("bot requires a registry")
	}
	if c.Stores == nil {
		return verrors.ConfigInvalid("bot requires a store manager")
	}
	if c.Scheduler == nil {
		return verrors.ConfigInvalid("bot requires a scheduler")
	}
	if c.Assistant == nil {
		return verrors.ConfigInvalid("bot requires an assistant")
	}
	if c.Usage == nil {
		return verrors.ConfigInvalid("bot requires a usage tracker")
	}
	return nil
}

// Bot routes inbound messages.
type Bot struct {
	registry  registry.Registry
	stores    *store.Manager
	scheduler HeartbeatControl
	assistant Assistant
	usage     *usage.Tracker
	notes     *search.NoteIndex
	log       *logging.Logger
}

// New creates a Bot.
func New(cfg Config) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	return &Bot{
		registry:  cfg.Registry,
		stores:    cfg.Stores,
		scheduler: cfg.Scheduler,
		assistant: cfg.Assistant,
		usage:     cfg.Usage,
		notes:     cfg.Notes,
		log:       cfg.Logger.WithComponent("bot"),
	}, nil
}

// HandleMessage processes one inbound message and returns the reply
// text. Errors on the direct path are contained here and surface to
// the user as a short apology.
func (b *Bot) HandleMessage(ctx context.Context, userID, displayName, text string) string {
	user, err := b.registry.Register(userID, displayName)
	if err != nil {
		b.log.Error("registration failed", map[string]interface{}{
			"user": userID, "error": err,
		})
		return apology
	}
	b.registry.UpdateLastSeen(userID)

	if user.Status == registry.StatusBanned {
		b.log.Warn("dropping message from banned user", map[string]interface{}{"user": userID})
		return ""
	}

	// Users registering mid-run get a job on first contact; the
	// scheduler's startup load only covers users already on disk.
	if !b.scheduler.GetStatus(userID).JobExists {
		b.armHeartbeat(userID)
	}

	if strings.HasPrefix(text, commandPrefix) {
		return b.handleCommand(ctx, userID, strings.TrimPrefix(text, commandPrefix))
	}

	reply, err := b.assistant.Respond(ctx, userID, text)
	if err != nil {
		b.log.Error("direct response failed", map[string]interface{}{
			"user": userID, "error": err,
		})
		return apology
	}
	return reply
}

// armHeartbeat arms a job from the user's persisted config. Failures
// are logged; message handling proceeds either way.
func (b *Bot) armHeartbeat(userID string) {
	cfg, err := b.userConfig(userID)
	if err != nil {
		b.log.Error("arming heartbeat failed", map[string]interface{}{"user": userID, "error": err})
		return
	}
	if err := b.scheduler.AddUser(userID, cfg.Interval(), cfg.HeartbeatEnabled); err != nil {
		b.log.Error("arming heartbeat failed", map[string]interface{}{"user": userID, "error": err})
	}
}

// handleCommand dispatches one admin command.
func (b *Bot) handleCommand(ctx context.Context, userID, cmd string) string {
	name, args := splitCommand(cmd)

	switch name {
	case "status":
		return b.cmdStatus(userID)
	case "pause":
		return b.cmdPause(userID)
	case "resume":
		return b.cmdResume(userID)
	case "interval":
		return b.cmdInterval(userID, args)
	case "heartbeat":
		return b.cmdHeartbeat(ctx, userID)
	case "note":
		return b.cmdNote(userID, args)
	case "notes":
		return b.cmdNotes(userID, args)
	case "help", "":
		return helpText
	default:
		return fmt.Sprintf("Unknown command %q. Try ...help", name)
	}
}

const helpText = `Commands:
...status - heartbeat status and API spend
...pause - pause heartbeats
...resume - resume heartbeats
...interval N - set heartbeat interval to N minutes
...heartbeat - run one heartbeat now
...note <text> - save a note
...notes <query> - search your notes
...help - this message`

func (b *Bot) cmdStatus(userID string) string {
	cfg, err := b.userConfig(userID)
	if err != nil {
		b.log.Error("status command failed", map[string]interface{}{"user": userID, "error": err})
		return apology
	}

	report, err := b.usage.Report(userID, cfg.Model)
	if err != nil {
		b.log.Error("usage report failed", map[string]interface{}{"user": userID, "error": err})
		return apology
	}

	status := b.scheduler.GetStatus(userID)
	var sb strings.Builder
	sb.WriteString(report)
	sb.WriteString("\n\nHeartbeat:\n")
	if status.Enabled {
		fmt.Fprintf(&sb, "Enabled, every %d minutes\n", cfg.HeartbeatIntervalMinutes)
	} else {
		sb.WriteString("Paused\n")
	}
	if status.NextFire != nil {
		fmt.Fprintf(&sb, "Next check: %s", status.NextFire.UTC().Format("15:04 MST"))
	}
	return sb.String()
}

func (b *Bot) cmdPause(userID string) string {
	enabled := false
	if err := b.persistEnabled(userID, enabled); err != nil {
		b.log.Error("pause command failed", map[string]interface{}{"user": userID, "error": err})
		return apology
	}
	b.scheduler.PauseUser(userID)
	return "Heartbeats paused. Use ...resume to turn them back on."
}

func (b *Bot) cmdResume(userID string) string {
	enabled := true
	if err := b.persistEnabled(userID, enabled); err != nil {
		b.log.Error("resume command failed", map[string]interface{}{"user": userID, "error": err})
		return apology
	}
	b.scheduler.ResumeUser(userID)
	return "Heartbeats resumed."
}

func (b *Bot) cmdInterval(userID, args string) string {
	minutes, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || minutes <= 0 {
		return "Usage: ...interval N (minutes, N > 0)"
	}

	st, err := b.stores.Get(userID)
	if err != nil {
		b.log.Error("interval command failed", map[string]interface{}{"user": userID, "error": err})
		return apology
	}
	cfg, err := st.UpdateConfig(store.ConfigUpdate{HeartbeatIntervalMinutes: &minutes})
	if err != nil {
		b.log.Error("interval command failed", map[string]interface{}{"user": userID, "error": err})
		return apology
	}

	// Re-arm with the new cadence; the persisted flag decides enabled.
	if err := b.scheduler.AddUser(userID, cfg.Interval(), cfg.HeartbeatEnabled); err != nil {
		b.log.Error("re-arming job failed", map[string]interface{}{"user": userID, "error": err})
		return apology
	}
	return fmt.Sprintf("Heartbeat interval set to %d minutes.", minutes)
}

func (b *Bot) cmdHeartbeat(ctx context.Context, userID string) string {
	if err := b.scheduler.TriggerNow(ctx, userID); err != nil {
		b.log.Error("manual heartbeat failed", map[string]interface{}{"user": userID, "error": err})
		return "Heartbeat failed. Check the logs."
	}
	return "Heartbeat triggered."
}

func (b *Bot) cmdNote(userID, args string) string {
	content := strings.TrimSpace(args)
	if content == "" {
		return "Usage: ...note <text>"
	}
	if err := b.assistant.SaveNote(userID, content); err != nil {
		b.log.Error("note command failed", map[string]interface{}{"user": userID, "error": err})
		return apology
	}
	return "Noted."
}

func (b *Bot) cmdNotes(userID, args string) string {
	query := strings.TrimSpace(args)

	if query != "" && b.notes != nil {
		hits, err := b.notes.Search(userID, query, 5)
		if err != nil {
			b.log.Error("note search failed", map[string]interface{}{"user": userID, "error": err})
			return apology
		}
		if len(hits) == 0 {
			return "No matching notes."
		}
		var sb strings.Builder
		sb.WriteString("Matching notes:\n")
		for _, h := range hits {
			fmt.Fprintf(&sb, "- %s\n", h.Content)
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	st, err := b.stores.Get(userID)
	if err != nil {
		b.log.Error("notes command failed", map[string]interface{}{"user": userID, "error": err})
		return apology
	}
	notes, err := st.Notes()
	if err != nil {
		b.log.Error("notes command failed", map[string]interface{}{"user": userID, "error": err})
		return apology
	}
	if len(notes) == 0 {
		return "No notes yet. Use ...note <text> to add one."
	}
	if len(notes) > 10 {
		notes = notes[len(notes)-10:]
	}
	var sb strings.Builder
	sb.WriteString("Recent notes:\n")
	for _, n := range notes {
		fmt.Fprintf(&sb, "- [%s] %s\n", n.Timestamp.Format("2006-01-02"), n.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) userConfig(userID string) (store.UserConfig, error) {
	st, err := b.stores.Get(userID)
	if err != nil {
		return store.UserConfig{}, err
	}
	return st.Config()
}

func (b *Bot) persistEnabled(userID string, enabled bool) error {
	st, err := b.stores.Get(userID)
	if err != nil {
		return err
	}
	_, err = st.UpdateConfig(store.ConfigUpdate{HeartbeatEnabled: &enabled})
	return err
}

func splitCommand(cmd string) (string, string) {
	cmd = strings.TrimSpace(cmd)
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		return strings.ToLower(cmd[:i]), cmd[i+1:]
	}
	return strings.ToLower(cmd), ""
}
