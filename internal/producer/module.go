package producer

import (
	"context"
	"fmt"

	"perp_bot/internal/modules/config"
	healthservice "perp_bot/internal/modules/health/service"
	okxws "perp_bot/internal/modules/okx_websocket/service"
	"perp_bot/internal/store"
	"perp_bot/pkg/logger"
	"perp_bot/pkg/loop"

	"go.uber.org/fx"
)

type BotID string

func newProducer(bot BotID, book *config.StrategyBook, cfg *config.Config, feed *okxws.Feed, st *store.Lifecycle) (*Producer, error) {
	strategy, ok := book.Lookup(string(bot))
	if !ok {
		return nil, fmt.Errorf("no strategy configured for bot %q", bot)
	}
	scorer, err := NewScorer(strategy)
	if err != nil {
		return nil, err
	}
	return NewProducer(strategy, feed, scorer, st, cfg.Producer), nil
}

func run(lc fx.Lifecycle, p *Producer, feed *okxws.Feed, cfg *config.Config, state *healthservice.State) {
	state.SetComponent(p.Component())
	feed.OnConnChange(state.SetWSConnected)

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			// история нужна до первого цикла
			if err := p.Warmup(startCtx); err != nil {
				logger.Warn("%s warmup: %v", p.Component(), err)
			}
			if cfg.Producer.Stream {
				go p.Follow(ctx)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})

	loop.Hook(lc, p.Component(), cfg.Producer.Interval, func(ctx context.Context) error {
		_, err := p.Cycle(ctx)
		return err
	}, state.TouchCycle)
}

// Module: процесс-продюсер сигналов одного бота.
func Module(bot string) fx.Option {
	return fx.Module("producer",
		fx.Supply(BotID(bot)),
		fx.Provide(newProducer),
		fx.Invoke(run),
	)
}
