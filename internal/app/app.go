// Package app wires a hub or field node together: the local store, the
// shared command mailbox, the agent scheduler, the command queue and the
// side channels, and manages their lifecycle.
package app

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/ggmhub/hub/internal/agents"
	"github.com/ggmhub/hub/internal/commands"
	"github.com/ggmhub/hub/internal/config"
	"github.com/ggmhub/hub/internal/llm"
	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/metrics"
	"github.com/ggmhub/hub/internal/notify"
	"github.com/ggmhub/hub/internal/remote"
	"github.com/ggmhub/hub/internal/store"
)

// App holds every long-lived component of a node.
type App struct {
	config *config.Config
	logger *logger.Logger

	// Persistence and transport
	store           *store.Store
	transport       remote.Transport
	transportCloser io.Closer

	// Side channels
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	metricsServer *http.Server

	// Hub only
	resolver  *llm.Resolver
	scheduler *agents.Scheduler

	// Command execution
	registry *commands.Registry
	queue    *commands.Queue

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	started bool
}

// New creates an App. Components are built by Initialize.
func New(cfg *config.Config, log *logger.Logger) *App {
	return &App{
		config: cfg,
		logger: log,
	}
}

// Run initializes the node, blocks until ctx is cancelled and then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		return err
	}

	a.logger.Info("Node is running",
		logger.Field{Key: "node", Value: a.config.Node.ID},
		logger.Field{Key: "role", Value: a.config.Node.Role},
		logger.Field{Key: "commands", Value: a.registry.Names()})

	<-ctx.Done()

	return a.Shutdown()
}

// Registry exposes the command registry, mainly for diagnostics.
func (a *App) Registry() *commands.Registry {
	return a.registry
}

// Scheduler is nil on field nodes and when scheduler.enabled is false.
func (a *App) Scheduler() *agents.Scheduler {
	return a.scheduler
}

// Sync refreshes the LLM provider choice and runs any agent that is due.
// It backs the force_sync command on the hub.
func (a *App) Sync(ctx context.Context) error {
	if a.resolver != nil {
		a.resolver.Refresh()
	}
	if a.scheduler != nil {
		a.scheduler.CheckAndRun(ctx)
	}
	return nil
}
