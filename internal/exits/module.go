package exits

import (
	"context"
	"fmt"

	"perp_bot/internal/modules/config"
	healthservice "perp_bot/internal/modules/health/service"
	"perp_bot/internal/store"
	"perp_bot/pkg/loop"

	"go.uber.org/fx"
)

type BotID string

func newLoop(bot BotID, book *config.StrategyBook, cfg *config.Config, venue Venue, closer Closer, st *store.Lifecycle) (*Loop, error) {
	strategy, ok := book.Lookup(string(bot))
	if !ok {
		return nil, fmt.Errorf("no strategy configured for bot %q", bot)
	}
	return NewLoop(strategy, venue, closer, st, cfg.Exits, cfg.Ladder.Expiry), nil
}

func run(lc fx.Lifecycle, l *Loop, cfg *config.Config, state *healthservice.State) {
	state.SetComponent(l.Component())
	loop.Hook(lc, l.Component(), cfg.Exits.PollInterval, func(ctx context.Context) error {
		return l.Tick(ctx)
	}, state.TouchCycle)
}

// Module: процесс выходов одного бота.
func Module(bot string) fx.Option {
	return fx.Module("exits",
		fx.Supply(BotID(bot)),
		fx.Provide(newLoop),
		fx.Invoke(run),
	)
}
