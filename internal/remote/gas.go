package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/retry"
)

const (
	// GASRequestTimeout is the default timeout for Apps Script calls.
	GASRequestTimeout = 30 * time.Second
	// GASMaxRetries bounds write-back attempts for terminal status updates.
	GASMaxRetries = 3

	gasTimeLayout = time.RFC3339
	maxGASBody    = 4 << 20
)

// GASConfig configures the Google Apps Script web app transport.
type GASConfig struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
}

// GASTransport talks to the Apps Script web app that fronts the shared
// spreadsheet. Reads are GET with query parameters, writes are JSON POSTs
// carrying an "action" field.
type GASTransport struct {
	client *http.Client
	url    string
	retry  retry.Config
	logger *logger.Logger
}

type gasCommand struct {
	ID          string `json:"id"`
	Command     string `json:"command"`
	Data        any    `json:"data"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	Result      string `json:"result,omitempty"`
}

type gasListResponse struct {
	Status   string       `json:"status"`
	Error    string       `json:"error,omitempty"`
	Commands []gasCommand `json:"commands"`
}

type gasWriteRequest struct {
	Action      string `json:"action"`
	ID          string `json:"id,omitempty"`
	Command     string `json:"command,omitempty"`
	Data        string `json:"data,omitempty"`
	Source      string `json:"source,omitempty"`
	Target      string `json:"target,omitempty"`
	Status      string `json:"status,omitempty"`
	Result      string `json:"result,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type gasWriteResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewGASTransport(cfg GASConfig, log *logger.Logger) (*GASTransport, error) {
	if cfg.URL == "" {
		return nil, errors.New("gas url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = GASRequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = GASMaxRetries
	}
	if log == nil {
		log = logger.Nop()
	}

	return &GASTransport{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		retry: retry.Config{
			MaxAttempts:    cfg.MaxRetries,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
			Logger:         log,
		},
		logger: log,
	}, nil
}

func (t *GASTransport) GetPendingCommands(ctx context.Context, status Status, target string) ([]Command, error) {
	q := url.Values{}
	q.Set("action", "get_remote_commands")
	q.Set("status", string(status))
	q.Set("target", target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp gasListResponse
	if err := t.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "success" {
		return nil, fmt.Errorf("gas error: %s", resp.Error)
	}

	commands := make([]Command, 0, len(resp.Commands))
	for _, row := range resp.Commands {
		commands = append(commands, row.toCommand())
	}
	return commands, nil
}

// PostCommandUpdate retries transient failures: a lost terminal write would
// leave the row pending for the other node.
func (t *GASTransport) PostCommandUpdate(ctx context.Context, id string, status Status, result string, completedAt time.Time) error {
	body := gasWriteRequest{
		Action:      "update_remote_command",
		ID:          id,
		Status:      string(status),
		Result:      Truncate(result),
		CompletedAt: completedAt.Format(gasTimeLayout),
	}
	return retry.DoErr(ctx, t.retry, func(ctx context.Context) error {
		_, err := t.post(ctx, body)
		return err
	})
}

func (t *GASTransport) PostCommand(ctx context.Context, command, data, source, target string, createdAt time.Time) (string, error) {
	return t.post(ctx, gasWriteRequest{
		Action:    "queue_remote_command",
		Command:   command,
		Data:      data,
		Source:    source,
		Target:    target,
		Status:    string(StatusPending),
		CreatedAt: createdAt.Format(gasTimeLayout),
	})
}

func (t *GASTransport) post(ctx context.Context, body gasWriteRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	var resp gasWriteResponse
	if err := t.do(req, &resp); err != nil {
		return "", err
	}
	if resp.Status != "" && resp.Status != "success" {
		return "", retry.Permanent(fmt.Errorf("gas %s failed: %s", body.Action, resp.Error))
	}
	return resp.ID, nil
}

func (t *GASTransport) do(req *http.Request, out any) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGASBody))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrTransportUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gas request failed: status=%d body=%s", resp.StatusCode, TruncateTo(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode gas response: %w", err))
	}
	return nil
}

func (c gasCommand) toCommand() Command {
	cmd := Command{
		ID:        c.ID,
		Command:   c.Command,
		Data:      rawData(c.Data),
		Source:    c.Source,
		Target:    c.Target,
		Status:    Status(c.Status),
		CreatedAt: parseSheetTime(c.CreatedAt),
		Result:    c.Result,
	}
	if ts := parseSheetTime(c.CompletedAt); !ts.IsZero() {
		cmd.CompletedAt = &ts
	}
	return cmd
}

// rawData normalizes the data cell: the sheet returns either the JSON text
// or, when Apps Script parsed it, the object itself.
func rawData(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func parseSheetTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
