package agents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmhub/hub/internal/metrics"
)

// Wednesday.
var testNow = time.Date(2025, 3, 5, 10, 0, 0, 0, time.Local)

func weeklyAgent(id int64, agentType string, nextRun string) Schedule {
	return Schedule{
		ID:           id,
		Name:         "agent",
		AgentType:    agentType,
		ScheduleType: "weekly",
		ScheduleDay:  "Monday",
		ScheduleTime: "09:00",
		Enabled:      true,
		NextRun:      nextRun,
		ConfigJSON:   "{}",
	}
}

func pastRun() string { return testNow.Add(-48 * time.Hour).Format(time.RFC3339) }

func countingExecutor(calls *atomic.Int32, out Output, err error) Executor {
	return ExecutorFunc(func(ctx context.Context, sch Schedule) (Output, error) {
		calls.Add(1)
		return out, err
	})
}

func newTestScheduler(store Store, executors map[string]Executor, opts ...Option) *Scheduler {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewScheduler(store, executors, Config{PollInterval: time.Hour, SleepStep: 10 * time.Millisecond}, nil, opts...)
}

func TestCheckAndRun_PrimesNewAgentWithoutRunning(t *testing.T) {
	var calls atomic.Int32
	store := newMemStore(weeklyAgent(1, "test", ""))
	s := newTestScheduler(store, map[string]Executor{"test": countingExecutor(&calls, Output{}, nil)})

	s.CheckAndRun(context.Background())

	assert.Zero(t, calls.Load())
	assert.Empty(t, store.Runs())
	next, ok := store.schedule(1).ParseNextRun()
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)), next)
}

func TestCheckAndRun_DisabledAgentNeverRuns(t *testing.T) {
	var calls atomic.Int32
	disabled := weeklyAgent(1, "test", pastRun())
	disabled.Enabled = false
	store := newMemStore(disabled)
	s := newTestScheduler(store, map[string]Executor{"test": countingExecutor(&calls, Output{}, nil)})

	for i := 0; i < 3; i++ {
		s.CheckAndRun(context.Background())
	}

	assert.Zero(t, calls.Load())
	assert.Empty(t, store.Runs())
}

func TestCheckAndRun_DueAgentRunsOnce(t *testing.T) {
	var calls atomic.Int32
	store := newMemStore(weeklyAgent(1, "test", pastRun()))
	s := newTestScheduler(store, map[string]Executor{
		"test": countingExecutor(&calls, Output{Title: "Spring", Text: "body"}, nil),
	})

	s.CheckAndRun(context.Background())
	s.CheckAndRun(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, RunSuccess, runs[0].Status)
	assert.Equal(t, "Spring", runs[0].OutputTitle)

	sch := store.schedule(1)
	next, ok := sch.ParseNextRun()
	require.True(t, ok)
	assert.True(t, next.After(testNow))
	assert.True(t, next.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)), next)
	require.NotNil(t, sch.LastRun)
	assert.True(t, sch.LastRun.Equal(testNow))
}

func TestCheckAndRun_NotYetDue(t *testing.T) {
	var calls atomic.Int32
	store := newMemStore(weeklyAgent(1, "test", testNow.Add(time.Minute).Format(time.RFC3339)))
	s := newTestScheduler(store, map[string]Executor{"test": countingExecutor(&calls, Output{}, nil)})

	s.CheckAndRun(context.Background())

	assert.Zero(t, calls.Load())
}

func TestCheckAndRun_UnparsableNextRunSkipped(t *testing.T) {
	var calls atomic.Int32
	store := newMemStore(
		weeklyAgent(1, "test", "soon"),
		weeklyAgent(2, "test", pastRun()),
	)
	s := newTestScheduler(store, map[string]Executor{"test": countingExecutor(&calls, Output{}, nil)})

	s.CheckAndRun(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "soon", store.schedule(1).NextRun)
}

func TestCheckAndRun_Failures(t *testing.T) {
	tests := []struct {
		name      string
		agentType string
		executor  Executor
		wantError string
	}{
		{
			name:      "unknown agent type",
			agentType: "poster_designer",
			wantError: "unknown agent type: poster_designer",
		},
		{
			name:      "executor error",
			agentType: "test",
			executor: ExecutorFunc(func(ctx context.Context, sch Schedule) (Output, error) {
				return Output{}, errors.New("no LLM provider available")
			}),
			wantError: "no LLM provider available",
		},
		{
			name:      "executor panic",
			agentType: "test",
			executor: ExecutorFunc(func(ctx context.Context, sch Schedule) (Output, error) {
				panic("nil map")
			}),
			wantError: "agent panicked: nil map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var okCalls atomic.Int32
			store := newMemStore(
				weeklyAgent(1, tt.agentType, pastRun()),
				weeklyAgent(2, "ok", pastRun()),
			)
			executors := map[string]Executor{"ok": countingExecutor(&okCalls, Output{Title: "fine"}, nil)}
			if tt.executor != nil {
				executors[tt.agentType] = tt.executor
			}
			notifier := &recordingNotifier{}
			s := newTestScheduler(store, executors, WithNotifier(notifier))

			s.CheckAndRun(context.Background())

			runs := store.Runs()
			require.Len(t, runs, 2)
			assert.Equal(t, RunFailed, runs[0].Status)
			assert.Equal(t, tt.wantError, runs[0].ErrorMessage)
			assert.Equal(t, RunSuccess, runs[1].Status)
			assert.Equal(t, int32(1), okCalls.Load())

			// a failed agent is still rescheduled
			next, ok := store.schedule(1).ParseNextRun()
			require.True(t, ok)
			assert.True(t, next.After(testNow))
			assert.Equal(t, 1, notifier.Count())
		})
	}
}

func TestCheckAndRun_StoreErrorIsLogged(t *testing.T) {
	store := newMemStore()
	store.failList = errors.New("database is locked")
	s := newTestScheduler(store, nil)

	assert.NotPanics(t, func() { s.CheckAndRun(context.Background()) })
}

func TestRun_SavesDraftAndNotifies(t *testing.T) {
	var calls atomic.Int32
	store := newMemStore(weeklyAgent(7, "test", pastRun()))
	notifier := &recordingNotifier{err: errors.New("telegram down")}
	m := metrics.New()
	s := newTestScheduler(store, map[string]Executor{
		"test": countingExecutor(&calls, Output{
			Title: "Lawns in spring",
			Text:  "body",
			Draft: &Draft{Kind: DraftBlog, Title: "Lawns in spring", Body: "body"},
		}, nil),
	}, WithNotifier(notifier), WithMetrics(m))

	s.CheckAndRun(context.Background())

	drafts := store.Drafts()
	require.Len(t, drafts, 1)
	assert.Equal(t, int64(7), drafts[0].AgentID)
	assert.Equal(t, int64(1), drafts[0].RunID)
	assert.Equal(t, 1, notifier.Count())
	assert.Equal(t, RunSuccess, store.Runs()[0].Status)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `ggmhub_agent_runs_total{agent_type="test",status="success"} 1`)
}

func TestRunNow(t *testing.T) {
	var calls atomic.Int32
	agent := weeklyAgent(1, "test", testNow.Add(72*time.Hour).Format(time.RFC3339))
	agent.Enabled = false
	store := newMemStore(agent)
	s := newTestScheduler(store, map[string]Executor{"test": countingExecutor(&calls, Output{Title: "Manual"}, nil)})

	outcome, err := s.RunNow(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, outcome.Status)
	assert.Equal(t, "Manual", outcome.Title)
	assert.Equal(t, int64(1), outcome.RunID)
	assert.True(t, outcome.NextRun.After(testNow))
	assert.Equal(t, int32(1), calls.Load())

	_, err = s.RunNow(context.Background(), 99)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestRunNow_BusyAgentIsSkipped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	store := newMemStore(weeklyAgent(1, "slow", pastRun()))
	s := newTestScheduler(store, map[string]Executor{
		"slow": ExecutorFunc(func(ctx context.Context, sch Schedule) (Output, error) {
			close(started)
			<-release
			return Output{Title: "done"}, nil
		}),
	})

	errc := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), 1)
		errc <- err
	}()
	<-started

	_, err := s.RunNow(context.Background(), 1)
	assert.ErrorIs(t, err, ErrAgentBusy)

	// the autonomous path skips it as well
	s.CheckAndRun(context.Background())

	close(release)
	require.NoError(t, <-errc)
	assert.Len(t, store.Runs(), 1)
}

func TestExecute_AutonomousRechecksDueTime(t *testing.T) {
	var calls atomic.Int32
	store := newMemStore(weeklyAgent(1, "test", pastRun()))
	s := newTestScheduler(store, map[string]Executor{"test": countingExecutor(&calls, Output{}, nil)})

	_, err := s.RunNow(context.Background(), 1)
	require.NoError(t, err)

	outcome, err := s.execute(context.Background(), 1, true)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_FortnightlySkipsAWeek(t *testing.T) {
	var calls atomic.Int32
	agent := weeklyAgent(1, "test", pastRun())
	agent.ScheduleType = "fortnightly"
	store := newMemStore(agent)
	s := newTestScheduler(store, map[string]Executor{"test": countingExecutor(&calls, Output{}, nil)})

	s.CheckAndRun(context.Background())

	next, ok := store.schedule(1).ParseNextRun()
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2025, 3, 17, 9, 0, 0, 0, time.Local)), next)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(newMemStore(), nil, Config{PollInterval: time.Hour, SleepStep: 50 * time.Millisecond}, nil)

	assert.ErrorIs(t, s.Stop(), ErrNotStarted)
	assert.False(t, s.IsRunning())

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	assert.True(t, s.IsRunning())

	stoppedAt := time.Now()
	require.NoError(t, s.Stop())
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop while sleeping")
	}
	assert.Less(t, time.Since(stoppedAt), 1500*time.Millisecond)
	assert.False(t, s.IsRunning())
}

func TestScheduler_ContextCancelStopsLoop(t *testing.T) {
	s := NewScheduler(newMemStore(), nil, Config{PollInterval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx))
	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit on context cancel")
	}
}

func TestScheduler_StopDoesNotInterruptExecution(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var sawCancel atomic.Bool
	store := newMemStore(weeklyAgent(1, "slow", pastRun()))
	s := NewScheduler(store, map[string]Executor{
		"slow": ExecutorFunc(func(ctx context.Context, sch Schedule) (Output, error) {
			close(started)
			<-release
			sawCancel.Store(ctx.Err() != nil)
			return Output{Title: "finished"}, nil
		}),
	}, Config{PollInterval: time.Hour, SleepStep: 10 * time.Millisecond}, nil,
		WithClock(func() time.Time { return testNow }))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	<-started

	require.NoError(t, s.Stop())
	cancel()

	select {
	case <-s.Done():
		t.Fatal("loop exited before the in-flight agent finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after execution")
	}

	assert.False(t, sawCancel.Load())
	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, RunSuccess, runs[0].Status)
}

func TestCheckAndRun_NotifierPanicDoesNotAffectOtherAgents(t *testing.T) {
	var calls atomic.Int32
	store := newMemStore(weeklyAgent(1, "test", pastRun()), weeklyAgent(2, "test", pastRun()))
	notifier := &panickingNotifier{}
	s := newTestScheduler(store, map[string]Executor{
		"test": countingExecutor(&calls, Output{Title: "Spring"}, nil),
	}, WithNotifier(notifier))

	require.NotPanics(t, func() { s.CheckAndRun(context.Background()) })

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), notifier.calls.Load())
	runs := store.Runs()
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, RunSuccess, run.Status)
	}
	for _, id := range []int64{1, 2} {
		next, ok := store.schedule(id).ParseNextRun()
		require.True(t, ok)
		assert.True(t, next.After(testNow))
	}
}

func TestRun_StorePanicRecordsFailedRun(t *testing.T) {
	var calls atomic.Int32
	store := newMemStore(weeklyAgent(1, "test", pastRun()), weeklyAgent(2, "test", pastRun()))
	store.panicOnUpdateRun = true
	s := newTestScheduler(store, map[string]Executor{
		"test": countingExecutor(&calls, Output{Title: "Spring"}, nil),
	})

	require.NotPanics(t, func() { s.CheckAndRun(context.Background()) })

	assert.Equal(t, int32(2), calls.Load())
	runs := store.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].ErrorMessage, "database driver exploded")
	assert.Equal(t, RunSuccess, runs[1].Status)

	next, ok := store.schedule(1).ParseNextRun()
	require.True(t, ok)
	assert.True(t, next.After(testNow))

	// Rescheduled, so the next tick does not retry it.
	s.CheckAndRun(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunNow_PanicBeforeRunIsAnError(t *testing.T) {
	s := newTestScheduler(panickyLookupStore{newMemStore(weeklyAgent(1, "test", ""))}, nil)

	out, err := s.RunNow(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution panicked")
	assert.Equal(t, RunFailed, out.Status)

	// The per-agent lock was released.
	_, err = s.RunNow(context.Background(), 1)
	assert.NotErrorIs(t, err, ErrAgentBusy)
}

type panickyLookupStore struct{ *memStore }

func (panickyLookupStore) GetAgentSchedule(ctx context.Context, id int64) (*Schedule, error) {
	panic("lookup exploded")
}
