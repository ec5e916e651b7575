package telegram

import (
	"perp_bot/internal/modules/config"
	"perp_bot/internal/notify"
	"perp_bot/pkg/logger"

	"go.uber.org/fx"
)

// Prefix: метка процесса в сообщениях, задаётся подкомандой.
type Prefix string

// NewNotifier: Telegram при наличии токена и chat_id, иначе пишем в лог.
func NewNotifier(cfg *config.Config, prefix Prefix) notify.Notifier {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		logger.Warn("telegram is not configured, notifications go to log")
		return notify.Stdout{}
	}
	t, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, string(prefix))
	if err != nil {
		logger.Error("telegram init: %v, notifications go to log", err)
		return notify.Stdout{}
	}
	return t
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(NewNotifier),
	)
}
