package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"perp_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier: исходящий канал для сводок. Ошибка доставки никогда не фатальна.
type Notifier interface {
	Send(ctx context.Context, msg string) error
}

func Sendf(ctx context.Context, n Notifier, format string, args ...any) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, fmt.Sprintf(format, args...)); err != nil {
		logger.Warn("notify: %v", err)
	}
}

// Telegram шлёт сообщения в один чат.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	prefix string
}

func NewTelegram(token string, chatID int64, prefix string) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID, prefix: prefix}, nil
}

// telegram режет сообщения длиннее 4096 символов
const maxMessageLen = 4000

func (t *Telegram) Send(_ context.Context, msg string) error {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return nil
	}
	if t.prefix != "" {
		msg = t.prefix + " " + msg
	}
	for _, part := range split(msg, maxMessageLen) {
		if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, part)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func split(msg string, limit int) []string {
	if len(msg) <= limit {
		return []string{msg}
	}
	var parts []string
	var b strings.Builder
	for _, line := range strings.SplitAfter(msg, "\n") {
		if b.Len()+len(line) > limit && b.Len() > 0 {
			parts = append(parts, b.String())
			b.Reset()
		}
		for len(line) > limit {
			parts = append(parts, line[:limit])
			line = line[limit:]
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}

// Stdout: fallback без токена, пишет в лог.
type Stdout struct{}

func (Stdout) Send(_ context.Context, msg string) error {
	logger.Info("[NOTIFY] %s", msg)
	return nil
}

// Recorder копит сообщения в памяти.
type Recorder struct {
	mu   sync.Mutex
	Msgs []string
}

func (r *Recorder) Send(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Msgs = append(r.Msgs, msg)
	return nil
}

func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Msgs) == 0 {
		return ""
	}
	return r.Msgs[len(r.Msgs)-1]
}
