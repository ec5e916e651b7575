package admission

import (
	"context"

	"perp_bot/internal/execution"
	"perp_bot/internal/modules/config"
	healthservice "perp_bot/internal/modules/health/service"
	"perp_bot/internal/notify"
	"perp_bot/internal/risk"
	"perp_bot/internal/store"
	"perp_bot/pkg/loop"

	"go.uber.org/fx"
)

func newController(
	venue Venue,
	st *store.Lifecycle,
	book *config.StrategyBook,
	guards *risk.Guards,
	entry *execution.EntryExecutor,
	n notify.Notifier,
	cfg *config.Config,
) *Controller {
	return NewController(venue, st, book, guards, entry, n, cfg.Admission)
}

func run(lc fx.Lifecycle, c *Controller, cfg *config.Config, state *healthservice.State) {
	state.SetComponent(Component)
	loop.Hook(lc, Component, cfg.Admission.PollInterval, func(ctx context.Context) error {
		_, _, err := c.Cycle(ctx)
		return err
	}, state.TouchCycle)
}

func Module() fx.Option {
	return fx.Module("admission",
		fx.Provide(newController),
		fx.Invoke(run),
	)
}
