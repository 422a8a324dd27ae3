package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ggmhub/hub/internal/agents"
)

var _ agents.Store = (*Store)(nil)

const scheduleColumns = `id, name, agent_type, schedule_type, schedule_day, schedule_time,
	enabled, last_run, next_run, config_json`

func scanSchedule(scan func(dest ...any) error) (agents.Schedule, error) {
	var (
		sch     agents.Schedule
		enabled int
		lastRun sql.NullString
	)
	err := scan(&sch.ID, &sch.Name, &sch.AgentType, &sch.ScheduleType, &sch.ScheduleDay,
		&sch.ScheduleTime, &enabled, &lastRun, &sch.NextRun, &sch.ConfigJSON)
	if err != nil {
		return agents.Schedule{}, err
	}
	sch.Enabled = enabled != 0
	sch.LastRun = parseTime(lastRun)
	return sch, nil
}

func (s *Store) GetAgentSchedules(ctx context.Context, enabledOnly bool) ([]agents.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM agent_schedules`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query agent schedules: %w", err)
	}
	defer rows.Close()

	var out []agents.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan agent schedule: %w", err)
		}
		out = append(out, sch)
	}
	return out, rows.Err()
}

func (s *Store) GetAgentSchedule(ctx context.Context, id int64) (*agents.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM agent_schedules WHERE id = ?`, id)
	sch, err := scanSchedule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %d: %w", id, agents.ErrAgentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get agent schedule: %w", err)
	}
	return &sch, nil
}

// CreateAgentSchedule inserts sch and returns its id. NextRun is stored as given.
func (s *Store) CreateAgentSchedule(ctx context.Context, sch agents.Schedule) (int64, error) {
	if sch.ConfigJSON == "" {
		sch.ConfigJSON = "{}"
	}
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `INSERT INTO agent_schedules
			(name, agent_type, schedule_type, schedule_day, schedule_time, enabled, last_run, next_run, config_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sch.Name, sch.AgentType, sch.ScheduleType, sch.ScheduleDay, sch.ScheduleTime,
			boolToInt(sch.Enabled), nullTime(sch.LastRun), sch.NextRun, sch.ConfigJSON, formatTime(time.Now()))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create agent schedule: %w", err)
	}
	return id, nil
}

// UpsertAgentSchedule updates the agent with the same name or creates it.
// The stored next_run is reset when the cadence changes.
func (s *Store) UpsertAgentSchedule(ctx context.Context, sch agents.Schedule) (id int64, created bool, err error) {
	var existing agents.Schedule
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM agent_schedules WHERE name = ?`, sch.Name)
	existing, err = scanSchedule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		id, err = s.CreateAgentSchedule(ctx, sch)
		return id, true, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("find agent schedule: %w", err)
	}

	nextRun := existing.NextRun
	if existing.ScheduleType != sch.ScheduleType || existing.ScheduleDay != sch.ScheduleDay || existing.ScheduleTime != sch.ScheduleTime {
		nextRun = ""
	}
	if sch.ConfigJSON == "" {
		sch.ConfigJSON = "{}"
	}
	err = retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE agent_schedules SET agent_type = ?, schedule_type = ?,
			schedule_day = ?, schedule_time = ?, enabled = ?, next_run = ?, config_json = ? WHERE id = ?`,
			sch.AgentType, sch.ScheduleType, sch.ScheduleDay, sch.ScheduleTime, boolToInt(sch.Enabled),
			nextRun, sch.ConfigJSON, existing.ID)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("update agent schedule: %w", err)
	}
	return existing.ID, false, nil
}

func (s *Store) SetAgentEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.execOne(ctx, id, `UPDATE agent_schedules SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
}

func (s *Store) UpdateAgentNextRun(ctx context.Context, id int64, nextRun time.Time, lastRun *time.Time) error {
	if lastRun == nil {
		return s.execOne(ctx, id, `UPDATE agent_schedules SET next_run = ? WHERE id = ?`, formatTime(nextRun), id)
	}
	return s.execOne(ctx, id, `UPDATE agent_schedules SET next_run = ?, last_run = ? WHERE id = ?`,
		formatTime(nextRun), formatTime(*lastRun), id)
}

// StaleRunAfter is how long a running row blocks new runs of its agent.
// Older rows are left behind by a process that died mid-run.
const StaleRunAfter = 2 * time.Hour

// LogAgentRun records a new run. It returns agents.ErrAgentBusy when another
// process sharing the database has a fresh running row for the agent.
func (s *Store) LogAgentRun(ctx context.Context, agentID int64, agentType string, status agents.RunStatus) (int64, error) {
	var id, affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO agent_runs (agent_id, agent_type, status, started_at)
			SELECT ?, ?, ?, ?
			WHERE NOT EXISTS (
				SELECT 1 FROM agent_runs
				WHERE agent_id = ? AND status = ? AND julianday(started_at) > julianday('now') - ?
			)`,
			agentID, agentType, string(status), formatTime(time.Now()),
			agentID, string(agents.RunRunning), StaleRunAfter.Hours()/24)
		if err != nil {
			return err
		}
		if affected, err = res.RowsAffected(); err != nil || affected == 0 {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("log agent run: %w", err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("agent %d: %w", agentID, agents.ErrAgentBusy)
	}
	return id, nil
}

// UpdateAgentRun applies the terminal update. Runs that already left the
// running state are not touched again.
func (s *Store) UpdateAgentRun(ctx context.Context, runID int64, u agents.RunUpdate) error {
	if u.FinishedAt.IsZero() {
		u.FinishedAt = time.Now()
	}
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE agent_runs SET status = ?, finished_at = ?,
			output_title = ?, output_text = ?, error_message = ?
			WHERE id = ? AND status = ?`,
			string(u.Status), formatTime(u.FinishedAt), u.OutputTitle, u.OutputText, u.ErrorMessage,
			runID, string(agents.RunRunning))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update agent run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("agent run %d is not running", runID)
	}
	return nil
}

// ListAgentRuns returns the newest runs first; agentID 0 lists all agents.
func (s *Store) ListAgentRuns(ctx context.Context, agentID int64, limit int) ([]agents.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, agent_id, agent_type, status, started_at, finished_at, output_title, output_text, error_message
		FROM agent_runs`
	args := []any{}
	if agentID != 0 {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agent runs: %w", err)
	}
	defer rows.Close()

	var out []agents.Run
	for rows.Next() {
		var (
			run       agents.Run
			status    string
			startedAt string
			finished  sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.AgentID, &run.AgentType, &status, &startedAt, &finished,
			&run.OutputTitle, &run.OutputText, &run.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan agent run: %w", err)
		}
		run.Status = agents.RunStatus(status)
		if t := parseTime(sql.NullString{String: startedAt, Valid: true}); t != nil {
			run.StartedAt = *t
		}
		run.FinishedAt = parseTime(finished)
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *Store) SaveDraftArtifact(ctx context.Context, d agents.Draft) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	var (
		query string
		args  []any
	)
	switch d.Kind {
	case agents.DraftBlog:
		query = `INSERT INTO blog_drafts (agent_id, run_id, title, content, excerpt, persona, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, 'draft', ?)`
		args = []any{nullID(d.AgentID), nullID(d.RunID), d.Title, d.Body, d.Excerpt, d.Persona, formatTime(d.CreatedAt)}
	case agents.DraftNewsletter:
		audience := d.Audience
		if audience == "" {
			audience = "all"
		}
		query = `INSERT INTO newsletter_drafts (agent_id, run_id, subject, body, audience, status, created_at)
			VALUES (?, ?, ?, ?, ?, 'draft', ?)`
		args = []any{nullID(d.AgentID), nullID(d.RunID), d.Title, d.Body, audience, formatTime(d.CreatedAt)}
	default:
		return 0, fmt.Errorf("unknown draft kind %q", d.Kind)
	}

	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("save %s draft: %w", d.Kind, err)
	}
	return id, nil
}

func (s *Store) execOne(ctx context.Context, id int64, query string, args ...any) error {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("agent %d: %w", id, agents.ErrAgentNotFound)
	}
	return nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
