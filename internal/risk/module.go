package risk

import (
	"perp_bot/internal/modules/config"
	"perp_bot/internal/notify"
	"perp_bot/internal/store"

	"go.uber.org/fx"
)

// Module отдаёт проверки; срабатывание дневного лимита останавливает процесс component.
func Module(component string) fx.Option {
	return fx.Module("risk",
		fx.Provide(func(cfg *config.Config, st *store.Lifecycle, n notify.Notifier) *Guards {
			return NewGuards(cfg.Risk, ProcessHalt(st, n, component, nil))
		}),
	)
}
