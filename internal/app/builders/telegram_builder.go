package builders

import (
	"github.com/ggmhub/hub/internal/config"
	"github.com/ggmhub/hub/internal/logger"
	"github.com/ggmhub/hub/internal/notify"
)

type TelegramBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewTelegramBuilder(cfg *config.Config, log *logger.Logger) *TelegramBuilder {
	return &TelegramBuilder{
		config: cfg,
		logger: log,
	}
}

// Build returns the operator-chat notifier, or notify.Nop when Telegram is
// disabled.
func (b *TelegramBuilder) Build() (notify.Notifier, error) {
	if !b.config.Telegram.Enabled {
		b.logger.Warn("Telegram notifications are disabled")
		return notify.Nop{}, nil
	}

	tg, err := notify.NewTelegram(b.config.Telegram.Token, b.config.Telegram.ChatID, b.logger)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Telegram notifier initialized", logger.Field{Key: "chat_id", Value: b.config.Telegram.ChatID})
	return tg, nil
}
