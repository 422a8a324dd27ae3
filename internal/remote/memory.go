package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTransport keeps rows in process. It backs single-machine setups
// and tests.
type MemoryTransport struct {
	mu       sync.Mutex
	rows     map[string]*Command
	order    []string
	failWith error
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{rows: make(map[string]*Command)}
}

// SetError makes every call fail with err until cleared with nil.
func (m *MemoryTransport) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MemoryTransport) GetPendingCommands(ctx context.Context, status Status, target string) ([]Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var out []Command
	for _, id := range m.order {
		row := m.rows[id]
		if row.Status == status && row.Target == target {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *MemoryTransport) PostCommandUpdate(ctx context.Context, id string, status Status, result string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	row, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("command %s not found", id)
	}
	if row.Status != StatusPending {
		return fmt.Errorf("command %s is already %s", id, row.Status)
	}
	if !status.Terminal() {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	row.Status = status
	row.Result = Truncate(result)
	row.CompletedAt = &completedAt
	return nil
}

func (m *MemoryTransport) PostCommand(ctx context.Context, command, data, source, target string, createdAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}

	id := uuid.NewString()
	m.rows[id] = &Command{
		ID:        id,
		Command:   command,
		Data:      data,
		Source:    source,
		Target:    target,
		Status:    StatusPending,
		CreatedAt: createdAt,
	}
	m.order = append(m.order, id)
	return id, nil
}

// Get returns a copy of the row with id.
func (m *MemoryTransport) Get(id string) (Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return Command{}, false
	}
	return *row, true
}

// Insert adds a row verbatim, keeping its id. Used to replay rows in tests.
func (m *MemoryTransport) Insert(cmd Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[cmd.ID]; !exists {
		m.order = append(m.order, cmd.ID)
	}
	c := cmd
	m.rows[cmd.ID] = &c
}
