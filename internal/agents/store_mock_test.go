package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// memStore is an in-memory Store for scheduler tests.
type memStore struct {
	mu        sync.Mutex
	schedules []Schedule
	runs      []Run
	drafts    []Draft
	failList  error
	// panicOnUpdateRun makes the next UpdateAgentRun call panic.
	panicOnUpdateRun bool
}

func newMemStore(schedules ...Schedule) *memStore {
	return &memStore{schedules: schedules}
}

func (m *memStore) GetAgentSchedules(ctx context.Context, enabledOnly bool) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var out []Schedule
	for _, s := range m.schedules {
		if enabledOnly && !s.Enabled {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) GetAgentSchedule(ctx context.Context, id int64) (*Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.schedules {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("agent %d: %w", id, ErrAgentNotFound)
}

func (m *memStore) UpdateAgentNextRun(ctx context.Context, id int64, nextRun time.Time, lastRun *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.schedules {
		if m.schedules[i].ID == id {
			m.schedules[i].NextRun = nextRun.Format(time.RFC3339Nano)
			if lastRun != nil {
				t := *lastRun
				m.schedules[i].LastRun = &t
			}
			return nil
		}
	}
	return ErrAgentNotFound
}

func (m *memStore) LogAgentRun(ctx context.Context, agentID int64, agentType string, status RunStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.runs) + 1)
	m.runs = append(m.runs, Run{ID: id, AgentID: agentID, AgentType: agentType, Status: status, StartedAt: time.Now()})
	return id, nil
}

func (m *memStore) UpdateAgentRun(ctx context.Context, runID int64, u RunUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnUpdateRun {
		m.panicOnUpdateRun = false
		panic("database driver exploded")
	}
	for i := range m.runs {
		r := &m.runs[i]
		if r.ID != runID {
			continue
		}
		if r.Status != RunRunning {
			return errors.New("run already finished")
		}
		finished := u.FinishedAt
		r.Status, r.FinishedAt = u.Status, &finished
		r.OutputTitle, r.OutputText, r.ErrorMessage = u.OutputTitle, u.OutputText, u.ErrorMessage
		return nil
	}
	return fmt.Errorf("run %d not found", runID)
}

func (m *memStore) SaveDraftArtifact(ctx context.Context, d Draft) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts = append(m.drafts, d)
	return int64(len(m.drafts)), nil
}

func (m *memStore) schedule(id int64) Schedule {
	s, _ := m.GetAgentSchedule(context.Background(), id)
	return *s
}

func (m *memStore) Runs() []Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Run(nil), m.runs...)
}

func (m *memStore) Drafts() []Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Draft(nil), m.drafts...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return n.err
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.titles)
}

type panickingNotifier struct {
	calls atomic.Int32
}

func (n *panickingNotifier) Notify(ctx context.Context, title, body string) error {
	n.calls.Add(1)
	panic("telegram client exploded")
}
