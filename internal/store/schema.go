package store

import (
	"context"
	"fmt"
)

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL,
		applied_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS agent_schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		agent_type TEXT NOT NULL,
		schedule_type TEXT NOT NULL DEFAULT 'weekly',
		schedule_day TEXT NOT NULL DEFAULT 'Monday',
		schedule_time TEXT NOT NULL DEFAULT '09:00',
		enabled INTEGER NOT NULL DEFAULT 1,
		last_run TEXT,
		next_run TEXT NOT NULL DEFAULT '',
		config_json TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_agent_schedules_name ON agent_schedules(name)`,
	`CREATE TABLE IF NOT EXISTS agent_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL REFERENCES agent_schedules(id) ON DELETE CASCADE,
		agent_type TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		output_title TEXT NOT NULL DEFAULT '',
		output_text TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_runs_agent ON agent_runs(agent_id, started_at)`,
	`CREATE TABLE IF NOT EXISTS blog_drafts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER,
		run_id INTEGER,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		excerpt TEXT NOT NULL DEFAULT '',
		persona TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS newsletter_drafts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER,
		run_id INTEGER,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		audience TEXT NOT NULL DEFAULT 'all',
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		postcode TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		marketing_opt_in INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id),
		service TEXT NOT NULL,
		date TEXT NOT NULL,
		time TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'confirmed'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id INTEGER NOT NULL REFERENCES clients(id),
		service TEXT NOT NULL,
		completed_on TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_completed ON jobs(completed_on)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL UNIQUE,
		client_id INTEGER NOT NULL REFERENCES clients(id),
		amount_pence INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		issued_on TEXT NOT NULL,
		due_on TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'unpaid'
	)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if count == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return tx.Commit()
}
