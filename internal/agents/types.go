package agents

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrNotStarted     = errors.New("scheduler not started")
	ErrAgentNotFound  = errors.New("agent not found")
	ErrAgentBusy      = errors.New("agent is already running")
)

// Known agent types.
const (
	TypeBlogWriter       = "blog_writer"
	TypeNewsletterWriter = "newsletter_writer"
)

// Schedule is a persisted agent definition with its cadence.
type Schedule struct {
	ID           int64
	Name         string
	AgentType    string
	ScheduleType string // daily, weekly, fortnightly, monthly
	ScheduleDay  string // weekday name
	ScheduleTime string // HH:MM
	Enabled      bool
	LastRun      *time.Time
	// NextRun is the raw stored value: RFC3339, empty when never primed,
	// possibly unparsable when edited by hand.
	NextRun    string
	ConfigJSON string
}

// ParseNextRun interprets NextRun. ok is false when it is empty or invalid.
func (s Schedule) ParseNextRun() (t time.Time, ok bool) {
	if s.NextRun == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s.NextRun, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Run is one execution record of an agent.
type Run struct {
	ID           int64
	AgentID      int64
	AgentType    string
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	OutputTitle  string
	OutputText   string
	ErrorMessage string
}

// RunUpdate is the terminal update applied to a running Run.
type RunUpdate struct {
	Status       RunStatus
	OutputTitle  string
	OutputText   string
	ErrorMessage string
	FinishedAt   time.Time
}

type DraftKind string

const (
	DraftBlog       DraftKind = "blog"
	DraftNewsletter DraftKind = "newsletter"
)

// Draft is generated content awaiting human approval.
type Draft struct {
	Kind      DraftKind
	AgentID   int64 // 0 when produced by a command
	RunID     int64
	Title     string // blog title or newsletter subject
	Body      string
	Excerpt   string
	Persona   string
	Audience  string
	CreatedAt time.Time
}

// Store is the persistence the scheduler needs.
type Store interface {
	GetAgentSchedules(ctx context.Context, enabledOnly bool) ([]Schedule, error)
	// GetAgentSchedule returns ErrAgentNotFound for unknown ids.
	GetAgentSchedule(ctx context.Context, id int64) (*Schedule, error)
	UpdateAgentNextRun(ctx context.Context, id int64, nextRun time.Time, lastRun *time.Time) error
	LogAgentRun(ctx context.Context, agentID int64, agentType string, status RunStatus) (int64, error)
	UpdateAgentRun(ctx context.Context, runID int64, update RunUpdate) error
	SaveDraftArtifact(ctx context.Context, draft Draft) (int64, error)
}
