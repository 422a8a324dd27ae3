package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ggmhub/hub/internal/logger"
)

// DefaultProbeTimeout bounds each candidate's Ping.
const DefaultProbeTimeout = 5 * time.Second

// Resolver chooses the first reachable provider from an ordered candidate
// list and caches the choice until Refresh is called. It is itself a
// Provider, so callers never see which backend served them.
type Resolver struct {
	candidates   []Provider
	probeTimeout time.Duration
	logger       *logger.Logger

	mu     sync.RWMutex
	active Provider
	group  singleflight.Group
}

func NewResolver(candidates []Provider, probeTimeout time.Duration, log *logger.Logger) *Resolver {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		candidates:   candidates,
		probeTimeout: probeTimeout,
		logger:       log.Component("llm_resolver"),
	}
}

func (r *Resolver) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return "unresolved"
	}
	return r.active.Name()
}

// Active returns the cached provider or probes the candidates in order.
// Concurrent callers share one probe.
func (r *Resolver) Active(ctx context.Context) (Provider, error) {
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()
	if active != nil {
		return active, nil
	}

	v, err, _ := r.group.Do("probe", func() (any, error) {
		return r.probe(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

func (r *Resolver) probe(ctx context.Context) (Provider, error) {
	var errs []error
	for _, p := range r.candidates {
		probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
		err := p.Ping(probeCtx)
		cancel()
		if err != nil {
			r.logger.DebugCtx(ctx, "provider unavailable",
				logger.Field{Key: "provider", Value: p.Name()},
				logger.Field{Key: "error", Value: err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		r.mu.Lock()
		r.active = p
		r.mu.Unlock()
		r.logger.InfoCtx(ctx, "LLM provider selected", logger.Field{Key: "provider", Value: p.Name()})
		return p, nil
	}

	if len(errs) == 0 {
		return nil, ErrNoProvider
	}
	return nil, fmt.Errorf("%w: %w", ErrNoProvider, errors.Join(errs...))
}

// Refresh drops the cached provider so the next call re-probes.
func (r *Resolver) Refresh() {
	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()
}

// Generate delegates to the active provider. A failure drops the cache so
// a provider that went away is not reused on the next call.
func (r *Resolver) Generate(ctx context.Context, req Request) (string, error) {
	p, err := r.Active(ctx)
	if err != nil {
		return "", err
	}
	text, err := p.Generate(ctx, req)
	if err != nil {
		r.Refresh()
		return "", fmt.Errorf("%s: %w", p.Name(), err)
	}
	return text, nil
}

// Ping succeeds when any candidate is reachable.
func (r *Resolver) Ping(ctx context.Context) error {
	_, err := r.Active(ctx)
	return err
}
