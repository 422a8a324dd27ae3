// Package notify delivers short human-readable notices to the operator's
// side channel. Delivery is best effort: callers log and drop errors.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mymmrac/telego"

	"github.com/ggmhub/hub/internal/logger"
)

// Notifier sends a titled message.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

// BotAPI is the part of the Telegram bot API used here; *telego.Bot
// satisfies it.
type BotAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

const (
	// maxTextRunes is Telegram's limit for message text.
	maxTextRunes = 4096
	sendTimeout  = 10 * time.Second
)

// Telegram posts notifications to one chat as HTML messages.
type Telegram struct {
	bot    BotAPI
	chatID int64
	logger *logger.Logger
}

func NewTelegram(token string, chatID int64, log *logger.Logger) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramWithBot(bot, chatID, log), nil
}

func NewTelegramWithBot(bot BotAPI, chatID int64, log *logger.Logger) *Telegram {
	if log == nil {
		log = logger.Nop()
	}
	return &Telegram{bot: bot, chatID: chatID, logger: log.Component("telegram")}
}

func (t *Telegram) Notify(ctx context.Context, title, body string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	params := &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: t.chatID},
		Text:      format(title, body),
		ParseMode: telego.ModeHTML,
	}
	if _, err := t.bot.SendMessage(sendCtx, params); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}

	t.logger.DebugCtx(ctx, "notification sent", logger.Field{Key: "title", Value: title})
	return nil
}

func format(title, body string) string {
	text := "<b>" + html.EscapeString(title) + "</b>"
	if body == "" {
		return text
	}

	// Escape rune by rune so truncation never splits an entity.
	budget := maxTextRunes - utf8.RuneCountInString(text) - 3
	var b strings.Builder
	for _, r := range body {
		esc := html.EscapeString(string(r))
		n := utf8.RuneCountInString(esc)
		if n > budget {
			b.WriteString("…")
			break
		}
		b.WriteString(esc)
		budget -= n
	}
	return text + "\n\n" + b.String()
}
