package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ggmhub/hub/internal/agents"
	"github.com/ggmhub/hub/internal/app/builders"
	"github.com/ggmhub/hub/internal/commands"
	"github.com/ggmhub/hub/internal/content"
	"github.com/ggmhub/hub/internal/email"
	"github.com/ggmhub/hub/internal/facebook"
	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/metrics"
	"github.com/ggmhub/hub/internal/sanitize"
	"github.com/ggmhub/hub/internal/store"
	"github.com/ggmhub/hub/internal/version"
)

// Initialize builds and starts every component the node's role needs.
// On failure the components built so far are released.
func (a *App) Initialize(ctx context.Context) (err error) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer func() {
		if err != nil {
			a.cancel()
			a.release()
		}
	}()

	// 1. Shared mailbox
	a.transport, a.transportCloser, err = builders.NewTransportBuilder(a.config, a.logger).Build()
	if err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}

	// 2. Side channels
	a.notifier, err = builders.NewTelegramBuilder(a.config, a.logger).Build()
	if err != nil {
		return fmt.Errorf("failed to initialize telegram notifier: %w", err)
	}
	if a.config.Metrics.Enabled {
		a.metrics = metrics.New()
		a.startMetricsServer()
	}

	// 3. Command handlers for this role
	a.registry = commands.NewRegistry(a.logger)
	if a.config.IsHub() {
		if err := a.initializeHub(a.ctx); err != nil {
			return err
		}
	} else {
		commands.RegisterField(a.registry, commands.FieldDeps{
			NodeID:   a.config.Node.ID,
			RepoDir:  a.config.Field.RepoDir,
			CacheDir: a.config.Field.CacheDir,
			Notifier: a.notifier,
			Logger:   a.logger,
		})
	}

	// 4. Command queue
	if a.config.Queue.Enabled {
		journal, err := commands.OpenJournal(a.config.Queue.JournalPath, commands.DefaultJournalLimit, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open command journal: %w", err)
		}
		a.queue = commands.NewQueue(a.transport, a.registry, commands.Config{
			NodeID:       a.config.Node.ID,
			PollInterval: a.config.Queue.PollInterval(),
			InitialDelay: a.config.Queue.InitialDelay(),
			StopTimeout:  a.config.Queue.StopTimeout(),
		}, a.logger,
			commands.WithJournal(journal),
			commands.WithNotifier(a.notifier),
			commands.WithMetrics(a.metrics),
			commands.WithRedactor(a.redactor()),
		)
		if err := a.queue.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start command queue: %w", err)
		}
	} else {
		a.logger.Warn("command queue is disabled")
	}

	// 5. Agent scheduler
	if a.scheduler != nil {
		if err := a.scheduler.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start agent scheduler: %w", err)
		}
	}

	if err := a.notifier.Notify(a.ctx, "Node started", version.FormatStartupMessage(a.config.Node.ID)); err != nil {
		a.logger.Warn("startup notification failed", logger.Field{Key: "error", Value: err.Error()})
	}

	a.mu.Lock()
	a.started = true
	a.mu.Unlock()

	return nil
}

// initializeHub opens the store and builds the hub-only collaborators.
func (a *App) initializeHub(ctx context.Context) error {
	st, err := store.Open(a.config.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st

	if err := a.seed(ctx); err != nil {
		return err
	}

	var generator content.Generator
	if len(a.config.LLM.Providers) > 0 {
		resolver, err := builders.NewLLMBuilder(a.config, a.logger).Build()
		if err != nil {
			return fmt.Errorf("failed to initialize LLM providers: %w", err)
		}
		a.resolver = resolver
		generator = content.NewLLMGenerator(resolver, a.config.LLM.Temperature, a.logger)
	} else {
		a.logger.Warn("no LLM providers configured, content commands and agents are unavailable")
	}

	var engine email.Engine
	if a.config.SMTP.Enabled {
		smtpEngine, err := email.NewSMTPEngine(email.SMTPConfig{
			Addr:     a.config.SMTP.Addr,
			Username: a.config.SMTP.Username,
			Password: a.config.SMTP.Password,
			From:     a.config.SMTP.From,
			FromName: a.config.SMTP.FromName,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize email engine: %w", err)
		}
		engine = smtpEngine
	}

	fb := facebook.NewClient(facebook.Config{
		PageID:      a.config.Facebook.PageID,
		AccessToken: a.config.Facebook.AccessToken,
		GraphURL:    a.config.Facebook.GraphURL,
	}, a.logger)

	deps := commands.HubDeps{
		Generator: generator,
		Drafts:    a.store,
		Records:   a.store,
		Email:     engine,
		Facebook:  fb,
		Syncer:    commands.SyncFunc(a.Sync),
		Notifier:  a.notifier,
		Logger:    a.logger,
	}

	if a.config.Scheduler.Enabled {
		executors := map[string]agents.Executor{}
		if generator != nil {
			executors = agents.ContentExecutors(generator)
		}
		a.scheduler = agents.NewScheduler(a.store, executors, agents.Config{
			PollInterval: a.config.Scheduler.PollInterval(),
			SleepStep:    a.config.Scheduler.SleepStep(),
		}, a.logger,
			agents.WithNotifier(a.notifier),
			agents.WithMetrics(a.metrics),
		)
		deps.Agents = a.scheduler
	}

	commands.RegisterHub(a.registry, deps)
	return nil
}

// seed imports store.seed_file when the store has no agents yet.
func (a *App) seed(ctx context.Context) error {
	if a.config.Store.SeedFile == "" {
		return nil
	}
	existing, err := a.store.GetAgentSchedules(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to read agent schedules: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	res, err := a.store.ImportFile(ctx, a.config.Store.SeedFile)
	if err != nil {
		return fmt.Errorf("failed to import seed file: %w", err)
	}
	a.logger.Info("seed file imported",
		logger.Field{Key: "path", Value: a.config.Store.SeedFile},
		logger.Field{Key: "agents", Value: res.AgentsCreated},
		logger.Field{Key: "clients", Value: res.ClientsCreated})
	return nil
}

func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.metricsServer = &http.Server{
		Addr:              a.config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics endpoint listening", logger.Field{Key: "addr", Value: a.config.Metrics.Listen})
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", err)
		}
	}()
}

// redactor masks every configured credential in command results.
func (a *App) redactor() *sanitize.Redactor {
	secrets := []string{
		a.config.Telegram.Token,
		a.config.SMTP.Password,
		a.config.Facebook.AccessToken,
	}
	for _, p := range a.config.LLM.Providers {
		secrets = append(secrets, p.APIKey)
	}
	return sanitize.New(secrets...)
}
