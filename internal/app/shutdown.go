package app

import (
	"context"
	"time"

	"github.com/ggmhub/hub/internal/logger"
)

// schedulerStopTimeout bounds the wait for an agent run in progress.
const schedulerStopTimeout = 30 * time.Second

// Shutdown stops the node in reverse start order:
//  1. the agent scheduler (a run in progress is allowed to finish)
//  2. the command queue
//  3. the metrics endpoint
//  4. the transport connection and the store
//
// It is safe to call more than once.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	var firstErr error
	if a.scheduler != nil && a.scheduler.IsRunning() {
		if err := a.scheduler.Stop(); err != nil {
			a.logger.Error("Failed to stop agent scheduler", err)
			firstErr = err
		} else {
			select {
			case <-a.scheduler.Done():
			case <-time.After(schedulerStopTimeout):
				a.logger.Warn("agent run still in progress at shutdown",
					logger.Field{Key: "timeout", Value: schedulerStopTimeout.String()})
			}
		}
	}

	if a.queue != nil && a.queue.IsRunning() {
		if err := a.queue.Stop(); err != nil {
			a.logger.Error("Failed to stop command queue", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.cancel()
	a.release()

	a.started = false
	a.logger.Info("Node shutdown complete")
	return firstErr
}

// release closes the resources Initialize may have opened.
func (a *App) release() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("Failed to stop metrics server", err)
		}
		cancel()
		a.metricsServer = nil
	}
	if a.transportCloser != nil {
		if err := a.transportCloser.Close(); err != nil {
			a.logger.Error("Failed to close transport", err)
		}
		a.transportCloser = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close store", err)
		}
		a.store = nil
	}
}
