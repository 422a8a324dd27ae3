package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/notify"
)

// Field (laptop) command names. force_sync is shared with the hub.
const (
	CmdPing             = "ping"
	CmdForceRefresh     = "force_refresh"
	CmdShowNotification = "show_notification"
	CmdShowAlert        = "show_alert"
	CmdGitPull          = "git_pull"
	CmdClearCache       = "clear_cache"
	CmdSwitchTab        = "switch_tab"
	CmdSendData         = "send_data"
	CmdUpdateStatus     = "update_status"
)

const gitPullTimeout = 2 * time.Minute

// FieldDeps are the collaborators of the field node handlers.
type FieldDeps struct {
	NodeID   string
	RepoDir  string // git working copy updated by git_pull
	CacheDir string // emptied by clear_cache
	Notifier notify.Notifier
	Syncer   Syncer
	// OnRefresh and OnSwitchTab are called when set; the UI that owns
	// these actions lives outside this process.
	OnRefresh   func(ctx context.Context) error
	OnSwitchTab func(ctx context.Context, tab string) error
	Logger      *logger.Logger
	Now         func() time.Time
}

// FieldState is what the field node last reported through update_status
// and send_data.
type FieldState struct {
	mu        sync.Mutex
	status    string
	data      Payload
	updatedAt time.Time
}

func (s *FieldState) Status() (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.updatedAt
}

// Data returns a copy of the last send_data payload.
func (s *FieldState) Data() Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Payload, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

type fieldHandlers struct {
	FieldDeps
	state *FieldState
}

// RegisterField installs the field node's command set on r and returns the
// state it maintains.
func RegisterField(r *Registry, deps FieldDeps) *FieldState {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	deps.Logger = deps.Logger.Component("field_commands")
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &fieldHandlers{FieldDeps: deps, state: &FieldState{}}

	r.Register(CmdPing, h.ping)
	r.Register(CmdForceRefresh, h.forceRefresh)
	r.Register(CmdShowNotification, h.showNotification)
	r.Register(CmdShowAlert, h.showAlert)
	r.Register(CmdGitPull, h.gitPull)
	r.Register(CmdClearCache, h.clearCache)
	r.Register(CmdSwitchTab, h.switchTab)
	r.Register(CmdForceSync, forceSync(deps.Syncer))
	r.Register(CmdSendData, h.sendData)
	r.Register(CmdUpdateStatus, h.updateStatus)
	return h.state
}

// ping also reports the last status set through update_status.
func (h *fieldHandlers) ping(ctx context.Context, req Request) (Result, error) {
	reply := fmt.Sprintf("pong from %s at %s", h.NodeID, h.Now().Format(time.RFC3339))
	if status, at := h.state.Status(); status != "" {
		reply += fmt.Sprintf(", status %q since %s", status, at.Format(time.RFC3339))
	}
	return Ok("%s", reply), nil
}

func (h *fieldHandlers) forceRefresh(ctx context.Context, req Request) (Result, error) {
	if h.OnRefresh != nil {
		if err := h.OnRefresh(ctx); err != nil {
			return Result{}, fmt.Errorf("refresh failed: %w", err)
		}
	}
	h.Logger.InfoCtx(ctx, "refresh requested", logger.Field{Key: "source", Value: req.Command.Source})
	return Ok("Refresh requested"), nil
}

func (h *fieldHandlers) showNotification(ctx context.Context, req Request) (Result, error) {
	return h.show(ctx, req, "")
}

func (h *fieldHandlers) showAlert(ctx context.Context, req Request) (Result, error) {
	return h.show(ctx, req, "⚠️ ")
}

func (h *fieldHandlers) show(ctx context.Context, req Request, prefix string) (Result, error) {
	title := req.Payload.String("title")
	if title == "" {
		title = "Message from " + req.Command.Source
	}
	message := req.Payload.First("message", "body", "text")
	if message == "" {
		return Result{}, errors.New("message is required")
	}
	if err := h.Notifier.Notify(ctx, prefix+title, message); err != nil {
		return Result{}, fmt.Errorf("notification not delivered: %w", err)
	}
	return Ok("Shown: %s", title), nil
}

func (h *fieldHandlers) gitPull(ctx context.Context, req Request) (Result, error) {
	if h.RepoDir == "" {
		return Unavailable("no repository configured for git_pull"), nil
	}
	ctx, cancel := context.WithTimeout(ctx, gitPullTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", "-C", h.RepoDir, "pull", "--ff-only").CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text == "" {
			text = err.Error()
		}
		return Result{}, fmt.Errorf("git pull failed: %s", text)
	}
	if text == "" {
		text = "done"
	}
	return Ok("git pull: %s", text), nil
}

func (h *fieldHandlers) clearCache(ctx context.Context, req Request) (Result, error) {
	if h.CacheDir == "" {
		return Unavailable("no cache directory configured"), nil
	}
	entries, err := os.ReadDir(h.CacheDir)
	if errors.Is(err, os.ErrNotExist) {
		return Ok("Cache already empty"), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(h.CacheDir, e.Name())); err != nil {
			return Result{}, fmt.Errorf("clear cache: %w", err)
		}
	}
	return Ok("Cleared %d cache entries", len(entries)), nil
}

func (h *fieldHandlers) switchTab(ctx context.Context, req Request) (Result, error) {
	tab := req.Payload.String("tab")
	if tab == "" {
		return Result{}, errors.New("tab is required")
	}
	if h.OnSwitchTab != nil {
		if err := h.OnSwitchTab(ctx, tab); err != nil {
			return Result{}, err
		}
	}
	return Ok("Switched to %s", tab), nil
}

func (h *fieldHandlers) sendData(ctx context.Context, req Request) (Result, error) {
	keys := make([]string, 0, len(req.Payload))
	for k := range req.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h.state.mu.Lock()
	h.state.data = req.Payload
	h.state.updatedAt = h.Now()
	h.state.mu.Unlock()

	return Ok("Received %d fields: %s", len(keys), strings.Join(keys, ", ")), nil
}

func (h *fieldHandlers) updateStatus(ctx context.Context, req Request) (Result, error) {
	status := req.Payload.First("status", "message")
	if status == "" {
		return Result{}, errors.New("status is required")
	}

	h.state.mu.Lock()
	h.state.status = status
	h.state.updatedAt = h.Now()
	h.state.mu.Unlock()

	return Ok("Status updated: %s", status), nil
}
