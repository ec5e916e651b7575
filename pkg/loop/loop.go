// Package loop: периодические циклы процессов поверх fx.Lifecycle.
package loop

import (
	"context"
	"time"

	"perp_bot/pkg/logger"

	"go.uber.org/fx"
)

// Run вызывает fn сразу и затем каждые interval, пока жив ctx.
// after получает итог каждого цикла, может быть nil.
func Run(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error, after func(at time.Time, err error)) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("cycle: %v", err)
		}
		if after != nil {
			after(time.Now(), err)
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Hook запускает Run в OnStart и дожидается последнего цикла в OnStop.
func Hook(lc fx.Lifecycle, name string, interval time.Duration, fn func(ctx context.Context) error, after func(at time.Time, err error)) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("%s: every %s", name, interval)
			go func() {
				defer close(done)
				Run(ctx, interval, fn, after)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				logger.Warn("%s: stop timed out", name)
			}
			return nil
		},
	})
}
