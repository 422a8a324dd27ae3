package builders

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ggmhub/hub/internal/config"
	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/remote"
)

const redisPingTimeout = 3 * time.Second

type TransportBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewTransportBuilder(cfg *config.Config, log *logger.Logger) *TransportBuilder {
	return &TransportBuilder{
		config: cfg,
		logger: log,
	}
}

// Build returns the shared mailbox named by transport.kind. The closer is
// nil for transports that hold no connection.
func (b *TransportBuilder) Build() (remote.Transport, io.Closer, error) {
	tc := b.config.Transport
	switch tc.Kind {
	case config.TransportGAS:
		t, err := remote.NewGASTransport(remote.GASConfig{
			URL:        tc.GAS.URL,
			Timeout:    tc.GAS.Timeout(),
			MaxRetries: tc.GAS.MaxRetries,
		}, b.logger.Component("gas"))
		if err != nil {
			return nil, nil, err
		}
		b.logger.Info("transport initialized", logger.Field{Key: "kind", Value: tc.Kind})
		return t, nil, nil
	case config.TransportRedis:
		t, err := remote.NewRedisTransport(tc.Redis.URL, tc.Redis.Prefix)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := t.Ping(ctx); err != nil {
			b.logger.Warn("redis transport unreachable, commands resume once it is back",
				logger.Field{Key: "error", Value: err.Error()})
		}
		b.logger.Info("transport initialized",
			logger.Field{Key: "kind", Value: tc.Kind},
			logger.Field{Key: "prefix", Value: tc.Redis.Prefix})
		return t, t, nil
	case config.TransportMemory:
		b.logger.Warn("using in-memory transport: commands are not shared between nodes")
		return remote.NewMemoryTransport(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported transport: %s", tc.Kind)
	}
}
