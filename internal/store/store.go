// Package store is the hub's local SQLite database: agent schedules and
// runs, content drafts, and the customer records the email commands read.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ggmhub/hub/internal/retry"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	db *sql.DB
}

// Open creates the database file and its directory if needed and applies
// the schema. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = "file:" + path
	}
	dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// busyRetry backs off on top of the driver's busy_timeout.
var busyRetry = retry.Config{
	MaxAttempts:    6,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
}

// retryOnBusy retries f while SQLite reports BUSY or LOCKED. Any other
// error is returned at once.
func retryOnBusy(ctx context.Context, f func() error) error {
	return retry.DoErr(ctx, busyRetry, func(ctx context.Context) error {
		err := f()
		if err == nil {
			return nil
		}
		if isSQLiteBusy(err) {
			return retry.Transient(err)
		}
		return retry.Permanent(err)
	})
}

func isSQLiteBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
