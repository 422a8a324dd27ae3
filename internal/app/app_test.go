package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmhub/hub/internal/config"
	"github.com/ggmhub/hub/internal/logger"
)

func createTestConfig(t *testing.T, role string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		Node: config.NodeConfig{
			ID:   config.NodeHub,
			Role: role,
			Peer: config.NodeField,
		},
		Logging:   config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Store:     config.StoreConfig{Path: filepath.Join(dir, "hub.db")},
		Scheduler: config.SchedulerConfig{Enabled: role == config.RoleHub, SleepStepMillis: 10},
		Queue: config.QueueConfig{
			Enabled:            true,
			JournalPath:        filepath.Join(dir, "processed.jsonl"),
			StopTimeoutSeconds: 5,
		},
		Transport: config.TransportConfig{Kind: config.TransportMemory},
	}
	if role == config.RoleField {
		cfg.Node.ID, cfg.Node.Peer = config.NodeField, config.NodeHub
		cfg.Field.CacheDir = filepath.Join(dir, "cache")
	}
	return cfg
}

func TestApp_RunUntilCancelled(t *testing.T) {
	a := New(createTestConfig(t, config.RoleHub), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	assert.Eventually(t, func() bool {
		a.mu.RLock()
		defer a.mu.RUnlock()
		return a.started
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	assert.False(t, a.started)
}

func TestApp_RunFailsOnBadTransport(t *testing.T) {
	cfg := createTestConfig(t, config.RoleHub)
	cfg.Transport.Kind = "fax"

	err := New(cfg, logger.Nop()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported transport: fax")
}
