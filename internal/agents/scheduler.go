// Package agents runs the hub's autonomous content agents. A Scheduler polls
// the store for enabled agents, executes those that are due and records
// every execution as an agent run.
package agents

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ggmhub/hub/internal/cadence"
	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/metrics"
	"github.com/ggmhub/hub/internal/notify"
	"github.com/ggmhub/hub/internal/remote"
)

const (
	DefaultPollInterval = 60 * time.Second
	DefaultSleepStep    = time.Second
)

// Config controls the polling loop.
type Config struct {
	PollInterval time.Duration
	SleepStep    time.Duration // granularity at which Stop is observed
}

// RunOutcome describes one execution attempt.
type RunOutcome struct {
	AgentID int64
	RunID   int64
	Status  RunStatus
	Title   string
	Error   string
	NextRun time.Time
	// Skipped is set when an autonomous trigger found the agent no longer due.
	Skipped bool
}

type Option func(*Scheduler)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler executes due agents. Manual and autonomous triggers share one
// entry point guarded by a per-agent lock, so an agent never runs twice
// concurrently.
type Scheduler struct {
	store     Store
	executors map[string]Executor
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *logger.Logger
	config    Config
	now       func() time.Time
	locks     keyedMutex

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func NewScheduler(store Store, executors map[string]Executor, cfg Config, log *logger.Logger, opts ...Option) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SleepStep <= 0 {
		cfg.SleepStep = DefaultSleepStep
	}
	if cfg.SleepStep > cfg.PollInterval {
		cfg.SleepStep = cfg.PollInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Scheduler{
		store:     store,
		executors: executors,
		notifier:  notify.Nop{},
		logger:    log.Component("scheduler"),
		config:    cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the polling loop. The loop ends on Stop or when ctx is
// done; agent executions already in flight are not cancelled by either.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stop, s.done)

	s.logger.Info("agent scheduler started",
		logger.Field{Key: "poll_interval", Value: s.config.PollInterval.String()})
	return nil
}

// Stop signals the loop to exit and returns immediately. Use Done to wait.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	close(s.stop)
	s.started = false
	return nil
}

// Done is closed when the most recently started loop has exited. It is nil
// before the first Start.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.logger.Info("agent scheduler stopped")

	execCtx := context.WithoutCancel(ctx)
	for {
		s.CheckAndRun(execCtx)
		if !s.sleep(ctx, stop) {
			return
		}
	}
}

// sleep waits one poll interval in SleepStep slices and reports false when
// the loop should exit.
func (s *Scheduler) sleep(ctx context.Context, stop <-chan struct{}) bool {
	ticker := time.NewTicker(s.config.SleepStep)
	defer ticker.Stop()

	for waited := time.Duration(0); waited < s.config.PollInterval; waited += s.config.SleepStep {
		select {
		case <-stop:
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

// CheckAndRun performs one scheduling pass: agents without a next run are
// primed, unparsable next runs are skipped and due agents are executed in
// the order the store returns them.
func (s *Scheduler) CheckAndRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorCtx(ctx, "scheduler tick panic recovered", fmt.Errorf("panic: %v", r),
				logger.Field{Key: "stack", Value: string(debug.Stack())})
		}
	}()

	schedules, err := s.store.GetAgentSchedules(ctx, true)
	if err != nil {
		s.logger.ErrorCtx(ctx, "failed to load agent schedules", err)
		return
	}

	now := s.now()
	for _, sch := range schedules {
		if !sch.Enabled {
			continue
		}
		fields := []logger.Field{
			{Key: "agent_id", Value: sch.ID},
			{Key: "agent", Value: sch.Name},
		}

		if sch.NextRun == "" {
			next := cadence.ComputeNextRun(sch.ScheduleType, sch.ScheduleDay, sch.ScheduleTime, now)
			if err := s.store.UpdateAgentNextRun(ctx, sch.ID, next, nil); err != nil {
				s.logger.ErrorCtx(ctx, "failed to prime agent", err, fields...)
				continue
			}
			s.logger.InfoCtx(ctx, "agent primed",
				append(fields, logger.Field{Key: "next_run", Value: next.Format(time.RFC3339)})...)
			continue
		}

		due, ok := sch.ParseNextRun()
		if !ok {
			s.logger.WarnCtx(ctx, "skipping agent with unparsable next_run",
				append(fields, logger.Field{Key: "next_run", Value: sch.NextRun})...)
			continue
		}
		if now.Before(due) {
			continue
		}

		if _, err := s.execute(ctx, sch.ID, true); err != nil {
			if errors.Is(err, ErrAgentBusy) {
				s.logger.InfoCtx(ctx, "agent already running, skipped", fields...)
				continue
			}
			s.logger.ErrorCtx(ctx, "agent execution failed", err, fields...)
		}
	}
}

// RunNow executes agentID immediately, ignoring its due time and enabled
// flag. It returns ErrAgentBusy when the agent is already running.
func (s *Scheduler) RunNow(ctx context.Context, agentID int64) (RunOutcome, error) {
	return s.execute(ctx, agentID, false)
}

func (s *Scheduler) execute(ctx context.Context, agentID int64, autonomous bool) (outcome RunOutcome, err error) {
	unlock, ok := s.locks.TryLock(agentID)
	if !ok {
		return RunOutcome{AgentID: agentID}, fmt.Errorf("agent %d: %w", agentID, ErrAgentBusy)
	}
	defer unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorCtx(ctx, "agent execution panic recovered", fmt.Errorf("panic: %v", r),
				logger.Field{Key: "agent_id", Value: agentID},
				logger.Field{Key: "stack", Value: string(debug.Stack())})
			outcome = RunOutcome{AgentID: agentID, Status: RunFailed}
			err = fmt.Errorf("agent %d: execution panicked: %v", agentID, r)
		}
	}()

	sch, err := s.store.GetAgentSchedule(ctx, agentID)
	if err != nil {
		return RunOutcome{AgentID: agentID}, err
	}

	// A manual run may have finished between the tick's read and this lock.
	if autonomous {
		due, ok := sch.ParseNextRun()
		if !sch.Enabled || !ok || s.now().Before(due) {
			return RunOutcome{AgentID: agentID, Skipped: true}, nil
		}
	}
	return s.run(ctx, *sch)
}

func (s *Scheduler) run(ctx context.Context, sch Schedule) (outcome RunOutcome, err error) {
	log := s.logger.With(
		logger.Field{Key: "agent_id", Value: sch.ID},
		logger.Field{Key: "agent_type", Value: sch.AgentType})

	startedAt := s.now()
	runID, err := s.store.LogAgentRun(ctx, sch.ID, sch.AgentType, RunRunning)
	if err != nil {
		return RunOutcome{AgentID: sch.ID}, fmt.Errorf("log agent run: %w", err)
	}
	log.InfoCtx(ctx, "agent run started", logger.Field{Key: "run_id", Value: runID})

	// Once the run row exists every exit leaves it terminal and the agent
	// rescheduled, including panics in bookkeeping or notification.
	var recorded, rescheduled bool
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		msg := fmt.Sprintf("agent run panicked: %v", r)
		log.ErrorCtx(ctx, "agent run panic recovered", fmt.Errorf("panic: %v", r),
			logger.Field{Key: "run_id", Value: runID},
			logger.Field{Key: "stack", Value: string(debug.Stack())})
		if !recorded {
			s.bestEffort(ctx, "record panicked run", func() error {
				return s.store.UpdateAgentRun(ctx, runID, RunUpdate{Status: RunFailed, ErrorMessage: msg, FinishedAt: s.now()})
			})
			outcome = RunOutcome{AgentID: sch.ID, RunID: runID, Status: RunFailed, Error: msg}
		}
		if !rescheduled {
			outcome.NextRun = cadence.NextAfterRun(sch.ScheduleType, sch.ScheduleDay, sch.ScheduleTime, s.now())
			s.bestEffort(ctx, "reschedule panicked run", func() error {
				return s.store.UpdateAgentNextRun(ctx, sch.ID, outcome.NextRun, &startedAt)
			})
		}
		err = nil
	}()

	out, execErr := s.invoke(ctx, sch)
	finishedAt := s.now()

	update := RunUpdate{FinishedAt: finishedAt}
	outcome = RunOutcome{AgentID: sch.ID, RunID: runID}
	if execErr != nil {
		update.Status = RunFailed
		update.ErrorMessage = execErr.Error()
		outcome.Error = update.ErrorMessage
	} else {
		update.Status = RunSuccess
		update.OutputTitle = out.Title
		update.OutputText = out.Text
		outcome.Title = out.Title
	}
	outcome.Status = update.Status

	if err := s.store.UpdateAgentRun(ctx, runID, update); err != nil {
		log.ErrorCtx(ctx, "failed to record agent run", err, logger.Field{Key: "run_id", Value: runID})
	}
	recorded = true

	outcome.NextRun = cadence.NextAfterRun(sch.ScheduleType, sch.ScheduleDay, sch.ScheduleTime, finishedAt)
	if err := s.store.UpdateAgentNextRun(ctx, sch.ID, outcome.NextRun, &startedAt); err != nil {
		log.ErrorCtx(ctx, "failed to reschedule agent", err)
	}
	rescheduled = true

	s.metrics.AgentRun(sch.AgentType, string(update.Status), finishedAt.Sub(startedAt))

	if execErr != nil {
		log.WarnCtx(ctx, "agent run failed",
			logger.Field{Key: "run_id", Value: runID},
			logger.Field{Key: "error", Value: execErr.Error()})
		return outcome, nil
	}

	if out.Draft != nil {
		draft := *out.Draft
		draft.AgentID, draft.RunID = sch.ID, runID
		if _, err := s.store.SaveDraftArtifact(ctx, draft); err != nil {
			log.ErrorCtx(ctx, "failed to save draft", err, logger.Field{Key: "run_id", Value: runID})
		}
	}

	title := fmt.Sprintf("Agent %s finished", sch.Name)
	body := out.Title
	if body == "" {
		body = remote.TruncateTo(out.Text, 200)
	}
	if err := s.notifier.Notify(ctx, title, body); err != nil {
		log.DebugCtx(ctx, "agent notification failed", logger.Field{Key: "error", Value: err.Error()})
	}

	log.InfoCtx(ctx, "agent run succeeded",
		logger.Field{Key: "run_id", Value: runID},
		logger.Field{Key: "title", Value: out.Title},
		logger.Field{Key: "next_run", Value: outcome.NextRun.Format(time.RFC3339)})
	return outcome, nil
}

// bestEffort runs a store write from a recovery path, where a second panic
// must not escape.
func (s *Scheduler) bestEffort(ctx context.Context, what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorCtx(ctx, "failed to "+what, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(); err != nil {
		s.logger.ErrorCtx(ctx, "failed to "+what, err)
	}
}

// invoke dispatches by agent type and converts panics into errors.
func (s *Scheduler) invoke(ctx context.Context, sch Schedule) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorCtx(ctx, "agent panic recovered", fmt.Errorf("panic: %v", r),
				logger.Field{Key: "agent_id", Value: sch.ID},
				logger.Field{Key: "stack", Value: string(debug.Stack())})
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()

	exec, ok := s.executors[sch.AgentType]
	if !ok {
		return Output{}, fmt.Errorf("unknown agent type: %s", sch.AgentType)
	}
	return exec.Execute(ctx, sch)
}
