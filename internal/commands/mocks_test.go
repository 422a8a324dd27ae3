package commands

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggmhub/hub/internal/remote"
)

type update struct {
	id     string
	status remote.Status
	result string
}

// replayTransport returns the same pending rows on every poll, the way a
// shared sheet does until a write-back becomes visible.
type replayTransport struct {
	mu        sync.Mutex
	pending   []remote.Command
	getErr    error
	updateErr error
	updates   []update
	targets   []string
}

func (t *replayTransport) GetPendingCommands(ctx context.Context, status remote.Status, target string) ([]remote.Command, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets = append(t.targets, target)
	if t.getErr != nil {
		return nil, t.getErr
	}
	return append([]remote.Command(nil), t.pending...), nil
}

func (t *replayTransport) PostCommandUpdate(ctx context.Context, id string, status remote.Status, result string, completedAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updates = append(t.updates, update{id: id, status: status, result: result})
	return t.updateErr
}

func (t *replayTransport) PostCommand(ctx context.Context, command, data, source, target string, createdAt time.Time) (string, error) {
	return "", errors.New("not supported")
}

func (t *replayTransport) Updates() []update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]update(nil), t.updates...)
}

func (t *replayTransport) Polls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.targets)
}

type notification struct {
	title string
	body  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{title, body})
	return n.err
}

func (n *recordingNotifier) Sent() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

func pending(id, command, data string) remote.Command {
	return remote.Command{
		ID:      id,
		Command: command,
		Data:    data,
		Source:  "laptop",
		Target:  "pc_hub",
		Status:  remote.StatusPending,
	}
}

type panickingNotifier struct{}

func (panickingNotifier) Notify(ctx context.Context, title, body string) error {
	panic("telegram client exploded")
}

type panickingTransport struct {
	replayTransport
	calls atomic.Int32
}

func (t *panickingTransport) GetPendingCommands(ctx context.Context, status remote.Status, target string) ([]remote.Command, error) {
	t.calls.Add(1)
	panic("sheet client exploded")
}
