// Package remote is the shared command mailbox between the hub and the
// field node: the Command row model, the Transport contract used by the
// command queue, its implementations, and the Sender used to enqueue new
// commands for the other node.
package remote

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"
)

// MaxResultLength caps result text written back to the shared store.
const MaxResultLength = 500

// ErrTransportUnavailable wraps network-level failures of a transport.
var ErrTransportUnavailable = errors.New("remote transport unavailable")

// Status of a command row. Rows only move from pending to a terminal status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Command is one row of the shared mailbox.
type Command struct {
	ID          string
	Command     string
	Data        string // JSON object
	Source      string
	Target      string
	Status      Status
	CreatedAt   time.Time
	CompletedAt *time.Time
	Result      string
}

// Transport reads and writes command rows in the shared store.
type Transport interface {
	GetPendingCommands(ctx context.Context, status Status, target string) ([]Command, error)
	PostCommandUpdate(ctx context.Context, id string, status Status, result string, completedAt time.Time) error
	PostCommand(ctx context.Context, command, data, source, target string, createdAt time.Time) (string, error)
}

// Truncate shortens s to at most MaxResultLength runes.
func Truncate(s string) string {
	return TruncateTo(s, MaxResultLength)
}

// TruncateTo shortens s to at most n runes without splitting a character.
func TruncateTo(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
