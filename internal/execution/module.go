package execution

import (
	"perp_bot/internal/modules/config"
	"perp_bot/internal/risk"
	"perp_bot/internal/store"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			func(m Market, cfg *config.Config) *Placer {
				return NewPlacer(m, cfg.Execution)
			},
			NewEntryExecutor,
			func(v Venue, p *Placer, g *risk.Guards, st *store.Lifecycle, j Journal, cfg *config.Config) *ExitExecutor {
				return NewExitExecutor(v, p, g, st, j, cfg.Exits.Cooldown)
			},
		),
	)
}
