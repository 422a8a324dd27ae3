// Package commands executes remote commands addressed to this node. A Queue
// polls the shared mailbox, claims each pending command once, dispatches it
// through a Registry and writes the outcome back.
package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/metrics"
	"github.com/ggmhub/hub/internal/notify"
	"github.com/ggmhub/hub/internal/remote"
	"github.com/ggmhub/hub/internal/sanitize"
)

const (
	DefaultPollInterval = 60 * time.Second
	DefaultInitialDelay = 10 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("command queue already started")
	ErrNotStarted     = errors.New("command queue not started")
)

type Config struct {
	NodeID       string
	PollInterval time.Duration
	InitialDelay time.Duration // grace period before the first poll
	StopTimeout  time.Duration
}

type Option func(*Queue)

func WithJournal(j *Journal) Option {
	return func(q *Queue) { q.journal = j }
}

func WithNotifier(n notify.Notifier) Option {
	return func(q *Queue) { q.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithRedactor masks secrets in results before they leave the node.
func WithRedactor(r *sanitize.Redactor) Option {
	return func(q *Queue) { q.redactor = r }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

type Queue struct {
	transport remote.Transport
	registry  *Registry
	journal   *Journal
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	redactor  *sanitize.Redactor
	logger    *logger.Logger
	config    Config
	now       func() time.Time

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func NewQueue(transport remote.Transport, registry *Registry, cfg Config, log *logger.Logger, opts ...Option) *Queue {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	q := &Queue{
		transport: transport,
		registry:  registry,
		journal:   NewMemoryJournal(),
		notifier:  notify.Nop{},
		logger:    log.Component("queue").With(logger.Field{Key: "node", Value: cfg.NodeID}),
		config:    cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the polling goroutine. The first poll happens after the
// configured initial delay.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return ErrAlreadyStarted
	}
	q.started = true
	q.stop = make(chan struct{})
	q.done = make(chan struct{})

	go q.loop(ctx, q.stop, q.done)

	q.logger.Info("command queue started",
		logger.Field{Key: "poll_interval", Value: q.config.PollInterval.String()},
		logger.Field{Key: "journal", Value: q.journal.Path()})
	return nil
}

// Stop prevents further polls and waits for the goroutine to exit, at most
// StopTimeout. A poll in progress is allowed to finish.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return ErrNotStarted
	}
	q.started = false
	close(q.stop)
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(q.config.StopTimeout):
		q.logger.Warn("command queue did not stop in time",
			logger.Field{Key: "timeout", Value: q.config.StopTimeout.String()})
		return fmt.Errorf("command queue did not stop within %s", q.config.StopTimeout)
	}
}

func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started
}

// Processed reports whether the command id has already been claimed.
func (q *Queue) Processed(id string) bool {
	return q.journal.Seen(id)
}

func (q *Queue) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer q.logger.Info("command queue stopped")

	if !q.wait(ctx, stop, q.config.InitialDelay) {
		return
	}
	execCtx := context.WithoutCancel(ctx)
	for {
		q.safePoll(execCtx)
		if !q.wait(ctx, stop, q.config.PollInterval) {
			return
		}
	}
}

func (q *Queue) wait(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (q *Queue) safePoll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.ErrorCtx(ctx, "queue poll panic recovered", fmt.Errorf("panic: %v", r),
				logger.Field{Key: "stack", Value: string(debug.Stack())})
		}
	}()
	q.Poll(ctx)
}

// Poll fetches pending commands for this node and processes them in the
// order returned. It returns the number of commands executed.
func (q *Queue) Poll(ctx context.Context) int {
	cmds, err := q.transport.GetPendingCommands(ctx, remote.StatusPending, q.config.NodeID)
	if err != nil {
		q.metrics.PollError()
		q.logger.DebugCtx(ctx, "remote store unavailable, no commands this tick",
			logger.Field{Key: "error", Value: err.Error()})
		return 0
	}

	executed := 0
	for _, cmd := range cmds {
		if q.process(ctx, cmd) {
			executed++
		}
	}
	return executed
}

// process executes one command. A panic after the claim is logged and the
// command stays claimed, so the rest of the batch still runs.
func (q *Queue) process(ctx context.Context, cmd remote.Command) (executed bool) {
	log := q.logger.With(
		logger.Field{Key: "command_id", Value: cmd.ID},
		logger.Field{Key: "command", Value: cmd.Command},
		logger.Field{Key: "source", Value: cmd.Source})

	// The shared sheet is eventually consistent and may return rows that
	// were already answered or are addressed elsewhere.
	if cmd.Status != remote.StatusPending || cmd.Target != q.config.NodeID {
		q.metrics.CommandSkipped()
		log.DebugCtx(ctx, "ignoring command not pending for this node",
			logger.Field{Key: "status", Value: string(cmd.Status)},
			logger.Field{Key: "target", Value: cmd.Target})
		return false
	}

	claimed, err := q.journal.Claim(cmd.ID)
	if !claimed {
		q.metrics.CommandSkipped()
		log.DebugCtx(ctx, "command already processed, skipping")
		return false
	}
	if err != nil {
		log.WarnCtx(ctx, "failed to persist command claim", logger.Field{Key: "error", Value: err.Error()})
	}

	defer func() {
		if r := recover(); r != nil {
			log.ErrorCtx(ctx, "command processing panic recovered", fmt.Errorf("panic: %v", r),
				logger.Field{Key: "stack", Value: string(debug.Stack())})
			executed = true
		}
	}()

	log.InfoCtx(ctx, "executing command")
	res := q.registry.Dispatch(ctx, Request{Command: cmd, Payload: DecodePayload(cmd.Data)})

	status := res.Status()
	message := remote.Truncate(q.redactor.Redact(res.Message))
	if err := q.transport.PostCommandUpdate(ctx, cmd.ID, status, message, q.now()); err != nil {
		log.ErrorCtx(ctx, "failed to report command result", err,
			logger.Field{Key: "status", Value: string(status)})
	}
	q.metrics.Command(cmd.Command, string(status))

	if res.Kind == KindError {
		log.WarnCtx(ctx, "command failed", logger.Field{Key: "result", Value: message})
	} else {
		log.InfoCtx(ctx, "command completed",
			logger.Field{Key: "kind", Value: res.Kind.String()},
			logger.Field{Key: "result", Value: message})
	}

	title := fmt.Sprintf("%s %s", res.icon(), cmd.Command)
	body := fmt.Sprintf("From %s: %s", cmd.Source, remote.TruncateTo(message, 200))
	if err := q.notifier.Notify(ctx, title, body); err != nil {
		log.DebugCtx(ctx, "command notification failed", logger.Field{Key: "error", Value: err.Error()})
	}
	return true
}
