package ladder

import (
	"context"

	"perp_bot/internal/modules/config"
	healthservice "perp_bot/internal/modules/health/service"
	"perp_bot/internal/store"
	"perp_bot/pkg/loop"

	"go.uber.org/fx"
)

func newReconciler(venue Venue, st *store.Lifecycle, cfg *config.Config) *Reconciler {
	return NewReconciler(venue, st, cfg.Ladder)
}

func run(lc fx.Lifecycle, r *Reconciler, cfg *config.Config, state *healthservice.State) {
	state.SetComponent(Component)
	loop.Hook(lc, Component, cfg.Ladder.SweepInterval, func(ctx context.Context) error {
		_, err := r.Sweep(ctx)
		return err
	}, state.TouchCycle)
}

func Module() fx.Option {
	return fx.Module("ladder",
		fx.Provide(newReconciler),
		fx.Invoke(run),
	)
}
