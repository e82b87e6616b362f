package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	verrors "github.com/daemonvigil/vigil/errors"
	"github.com/daemonvigil/vigil/logging"
	"github.com/daemonvigil/vigil/registry"
	"github.com/daemonvigil/vigil/store"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("scheduler already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("scheduler not started")

	// ErrStopped is returned when AddUser is called after Stop.
	ErrStopped = errors.New("scheduler stopped")
)

// Executor runs one heartbeat for one user. The scheduler hands it the
// user's store handle and current config; any error is caught and
// logged at the tick boundary.
type Executor interface {
	Execute(ctx context.Context, userID string, st *store.UserStore, cfg store.UserConfig) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, userID string, st *store.UserStore, cfg store.UserConfig) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, userID string, st *store.UserStore, cfg store.UserConfig) error {
	return f(ctx, userID, st, cfg)
}

// Status describes one user's scheduling state.
type Status struct {
	// Enabled is the in-memory heartbeat flag.
	Enabled bool

	// JobExists reports whether a timer is armed for the user.
	JobExists bool

	// NextFire is the next scheduled tick, nil when no job is armed or
	// the scheduler has not started.
	NextFire *time.Time
}

// Config configures a Scheduler.
type Config struct {
	Registry registry.Registry
	Stores   *store.Manager
	Executor Executor
	Logger   *logging.Logger
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Registry == nil {
		return verrors.ConfigInvalid("scheduler requires a registry")
	}
	if c.Stores == nil {
		return verrors.ConfigInvalid("scheduler requires a store manager")
	}
	if c.Executor == nil {
		return verrors.ConfigInvalid("scheduler requires an executor")
	}
	return nil
}

// job is one user's armed timer.
type job struct {
	userID   string
	interval time.Duration
	cancel   chan struct{}

	// inFlight is keyed to the user, not the job instance: re-arming
	// transfers it, so the non-overlap guarantee survives replacement
	// while an execution is still running.
	inFlight *atomic.Bool

	mu       sync.Mutex
	nextFire time.Time
}

func (j *job) setNextFire(t time.Time) {
	j.mu.Lock()
	j.nextFire = t
	j.mu.Unlock()
}

func (j *job) getNextFire() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextFire
}

// Scheduler owns one recurring timer per user.
//
// Three locks exist and none is held across I/O: stateMu guards the
// enabled map, jobsMu guards the job table, and each user's store has
// its own lock inside the store package.
type Scheduler struct {
	registry registry.Registry
	stores   *store.Manager
	executor Executor
	log      *logging.Logger

	running atomic.Bool
	stopped atomic.Bool
	startCh chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	ctx context.Context

	stateMu sync.Mutex
	enabled map[string]bool

	jobsMu sync.Mutex
	jobs   map[string]*job
}

// New creates a Scheduler. Jobs may be armed before Start; their
// timers begin running when Start is called.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	return &Scheduler{
		registry: cfg.Registry,
		stores:   cfg.Stores,
		executor: cfg.Executor,
		log:      cfg.Logger.WithComponent("scheduler"),
		startCh:  make(chan struct{}),
		stopCh:   make(chan struct{}),
		ctx:      context.Background(),
		enabled:  make(map[string]bool),
		jobs:     make(map[string]*job),
	}, nil
}

// AddUser arms (or re-arms, replacing) a recurring job for a user.
// Returns ErrStopped once the scheduler has been stopped.
func (s *Scheduler) AddUser(userID string, interval time.Duration, enabled bool) error {
	if userID == "" {
		return verrors.InvalidInput("user id is required")
	}
	if interval <= 0 {
		return verrors.InvalidInput("interval must be positive")
	}

	j := &job{
		userID:   userID,
		interval: interval,
		cancel:   make(chan struct{}),
		inFlight: new(atomic.Bool),
	}

	s.jobsMu.Lock()
	if s.stopped.Load() {
		s.jobsMu.Unlock()
		return ErrStopped
	}
	s.stateMu.Lock()
	s.enabled[userID] = enabled
	s.stateMu.Unlock()
	if old, ok := s.jobs[userID]; ok {
		close(old.cancel)
		// An execution from the replaced job may still be running;
		// carry its guard so the new timer cannot overlap it.
		j.inFlight = old.inFlight
	}
	s.jobs[userID] = j
	s.wg.Add(1)
	s.jobsMu.Unlock()

	go s.runJob(j)

	s.log.Debug("job armed", map[string]interface{}{
		"user": userID, "interval": interval.String(), "enabled": enabled,
	})
	return nil
}

// RemoveUser cancels the user's timer and drops tracked state.
// Idempotent: unknown users are a no-op.
func (s *Scheduler) RemoveUser(userID string) {
	s.jobsMu.Lock()
	if j, ok := s.jobs[userID]; ok {
		close(j.cancel)
		delete(s.jobs, userID)
	}
	s.jobsMu.Unlock()

	s.stateMu.Lock()
	delete(s.enabled, userID)
	s.stateMu.Unlock()

	s.log.Debug("job removed", map[string]interface{}{"user": userID})
}

// PauseUser disables a user's heartbeat. The timer keeps firing; ticks
// become no-ops until resumed.
func (s *Scheduler) PauseUser(userID string) {
	s.stateMu.Lock()
	s.enabled[userID] = false
	s.stateMu.Unlock()
}

// ResumeUser re-enables a user's heartbeat.
func (s *Scheduler) ResumeUser(userID string) {
	s.stateMu.Lock()
	s.enabled[userID] = true
	s.stateMu.Unlock()
}

// IsEnabled returns the user's heartbeat flag. Unknown users default
// to enabled so a registration race at startup never silently drops
// ticks; this is a fallback, not a correctness guarantee.
func (s *Scheduler) IsEnabled(userID string) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	enabled, ok := s.enabled[userID]
	if !ok {
		return true
	}
	return enabled
}

// GetStatus returns the user's scheduling state.
func (s *Scheduler) GetStatus(userID string) Status {
	status := Status{Enabled: s.IsEnabled(userID)}

	s.jobsMu.Lock()
	j, ok := s.jobs[userID]
	s.jobsMu.Unlock()

	if ok {
		status.JobExists = true
		if next := j.getNextFire(); !next.IsZero() {
			status.NextFire = &next
		}
	}
	return status
}

// Start loads every active registry user, arms a job with that user's
// persisted interval and enabled flag, and releases all armed timers.
// Further users may be added afterwards without restart.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.running.Swap(true) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx

	users, err := s.registry.List(registry.StatusActive)
	if err != nil {
		s.running.Store(false)
		return err
	}
	for _, u := range users {
		st, err := s.stores.Get(u.ID)
		if err != nil {
			s.log.Error("store unavailable at startup, skipping user", map[string]interface{}{
				"user": u.ID, "error": err,
			})
			continue
		}
		cfg, err := st.Config()
		if err != nil {
			s.log.Error("config unavailable at startup, skipping user", map[string]interface{}{
				"user": u.ID, "error": err,
			})
			continue
		}
		if err := s.AddUser(u.ID, cfg.Interval(), cfg.HeartbeatEnabled); err != nil {
			s.log.Error("failed to arm job at startup", map[string]interface{}{
				"user": u.ID, "error": err,
			})
		}
	}

	close(s.startCh)
	s.log.Info("scheduler started", map[string]interface{}{"jobs": len(users)})
	return nil
}

// Stop cancels all timers and waits for the job loops to exit.
// In-flight executions are not interrupted.
func (s *Scheduler) Stop() error {
	if !s.running.Load() {
		return ErrNotStarted
	}
	// stopped flips under jobsMu so AddUser cannot slip a wg.Add in
	// after the wait below begins.
	s.jobsMu.Lock()
	already := s.stopped.Swap(true)
	s.jobsMu.Unlock()
	if already {
		return nil
	}

	close(s.stopCh)
	s.wg.Wait()

	s.log.Info("scheduler stopped")
	return nil
}

// TriggerNow runs one out-of-band execution for a user without
// touching the schedule. Unlike scheduled ticks, errors propagate to
// the caller. Returns an error if an execution is already in flight.
func (s *Scheduler) TriggerNow(ctx context.Context, userID string) error {
	s.jobsMu.Lock()
	j := s.jobs[userID]
	s.jobsMu.Unlock()

	if j != nil {
		if j.inFlight.Swap(true) {
			return verrors.New(verrors.CodeExecutionFailed,
				fmt.Sprintf("execution already in flight for %s", userID),
				verrors.WithUser(userID))
		}
		defer j.inFlight.Store(false)
	}
	return s.execute(ctx, userID)
}

// runJob is one user's timer loop. Fire times advance by the interval
// from the previous nominal fire, never from execution completion, so
// cadence stays aligned to registration.
func (s *Scheduler) runJob(j *job) {
	defer s.wg.Done()

	select {
	case <-s.startCh:
	case <-j.cancel:
		return
	case <-s.stopCh:
		return
	}

	j.setNextFire(time.Now().Add(j.interval))

	for {
		timer := time.NewTimer(time.Until(j.getNextFire()))
		select {
		case <-j.cancel:
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.tick(j)
			j.setNextFire(j.getNextFire().Add(j.interval))
		}
	}
}

// tick handles one firing. Disabled users get a no-op tick; an
// execution still running from the previous tick coalesces this one.
// The execution itself runs off the timer path so slow I/O never
// delays the next fire.
func (s *Scheduler) tick(j *job) {
	if !s.IsEnabled(j.userID) {
		s.log.Debug("tick skipped, heartbeat disabled", map[string]interface{}{"user": j.userID})
		return
	}
	if j.inFlight.Swap(true) {
		s.log.Warn("tick coalesced, previous execution still running", map[string]interface{}{
			"user": j.userID,
		})
		return
	}

	go func() {
		defer j.inFlight.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in heartbeat execution", map[string]interface{}{
					"user": j.userID, "panic": r,
				})
			}
		}()

		if err := s.execute(s.ctx, j.userID); err != nil {
			s.log.Error("heartbeat execution failed", map[string]interface{}{
				"user": j.userID, "error": err,
			})
		}
	}()
}

// execute fetches the user's store and config and invokes the
// executor.
func (s *Scheduler) execute(ctx context.Context, userID string) error {
	st, err := s.stores.Get(userID)
	if err != nil {
		return err
	}
	cfg, err := st.Config()
	if err != nil {
		return err
	}
	return s.executor.Execute(ctx, userID, st, cfg)
}
