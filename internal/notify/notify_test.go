package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmhub/hub/internal/logger"
)

type mockBot struct {
	sent []*telego.SendMessageParams
	err  error
}

func (m *mockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, params)
	return &telego.Message{MessageID: len(m.sent)}, nil
}

func TestTelegram_Notify(t *testing.T) {
	bot := &mockBot{}
	n := NewTelegramWithBot(bot, 42, logger.Nop())

	err := n.Notify(context.Background(), "✅ Blog Writer", "Draft ready: <Lawns & Borders>")

	require.NoError(t, err)
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID.ID)
	assert.Equal(t, telego.ModeHTML, bot.sent[0].ParseMode)
	assert.Equal(t, "<b>✅ Blog Writer</b>\n\nDraft ready: &lt;Lawns &amp; Borders&gt;", bot.sent[0].Text)
}

func TestTelegram_NotifyError(t *testing.T) {
	bot := &mockBot{err: errors.New("chat not found")}
	n := NewTelegramWithBot(bot, 1, nil)

	err := n.Notify(context.Background(), "t", "b")

	assert.ErrorContains(t, err, "chat not found")
}

func TestFormat_TitleOnly(t *testing.T) {
	assert.Equal(t, "<b>Ping</b>", format("Ping", ""))
}

func TestFormat_Truncates(t *testing.T) {
	text := format("t", strings.Repeat("&", 5000))

	assert.LessOrEqual(t, utf8.RuneCountInString(text), 4096)
	assert.True(t, strings.HasSuffix(text, "…"))
}

func TestNewTelegram_RequiresToken(t *testing.T) {
	_, err := NewTelegram("", 1, nil)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Notify(context.Background(), "a", "b"))
}
