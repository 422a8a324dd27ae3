// Package retry runs an operation with exponential backoff. It is used for
// writes that must not be lost to a transient failure, such as reporting a
// command's terminal status back to the shared store.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggmhub/hub/internal/logger"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 10 * time.Second
)

// Config controls the retry loop. Zero values fall back to defaults.
type Config struct {
	MaxAttempts    int           // default 3
	InitialBackoff time.Duration // default 1s
	MaxBackoff     time.Duration // default 10s
	Logger         *logger.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialDelay
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxDelay
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return c
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				cfg.Logger.DebugCtx(ctx, "retry succeeded",
					logger.Field{Key: "attempt", Value: attempt + 1})
			}
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		backoff := calculateBackoff(attempt, cfg.InitialBackoff, cfg.MaxBackoff)
		cfg.Logger.DebugCtx(ctx, "retryable error, backing off",
			logger.Field{Key: "attempt", Value: attempt + 1},
			logger.Field{Key: "max_attempts", Value: cfg.MaxAttempts},
			logger.Field{Key: "backoff", Value: backoff.String()},
			logger.Field{Key: "error", Value: err.Error()})

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}

// DoErr is Do for operations without a result.
func DoErr(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Transient marks err as worth retrying regardless of its message.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// IsRetryable classifies err. Cancellation, permanent errors and 4xx
// responses (other than 429) are final; timeouts, connection problems, rate
// limits and 5xx responses are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var perm *permanentError
	if errors.As(err, &perm) || errors.Is(err, context.Canceled) {
		return false
	}
	var transient *transientError
	if errors.As(err, &transient) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())

	for _, pattern := range []string{"status=400", "status=401", "status=403", "status=404", "context canceled"} {
		if strings.Contains(msg, pattern) {
			return false
		}
	}

	for _, pattern := range []string{
		"deadline exceeded",
		"timeout",
		"connection refused",
		"connection reset",
		"temporary",
		"eof",
		"429",
		"too many requests",
		"rate limit",
		"status=500",
		"status=502",
		"status=503",
		"status=504",
		"network",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// calculateBackoff returns 2^attempt * initial, capped at max.
func calculateBackoff(attempt int, initial, max time.Duration) time.Duration {
	backoff := time.Duration(1<<uint(attempt)) * initial
	if backoff > max || backoff <= 0 {
		return max
	}
	return backoff
}
