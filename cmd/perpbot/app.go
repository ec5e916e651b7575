package main

import (
	"context"

	"perp_bot/internal/modules/config"
	"perp_bot/internal/modules/health"
	"perp_bot/internal/modules/redis"
	telegram "perp_bot/internal/modules/telegram_bot"
	"perp_bot/pkg/logger"
	"perp_bot/pkg/tracing"

	"go.uber.org/fx"
)

type serviceName string

// base собирает общее для всех процессов: конфиг, логгер, трейсинг, Redis, health и уведомления.
func base(name string) fx.Option {
	return fx.Options(
		fx.Supply(serviceName(name)),
		config.Module(),
		fx.Invoke(initLogger, initTracing),
		redis.Module(),
		health.Module(),
		telegram.Module(),
		fx.Supply(telegram.Prefix(name)),
	)
}

func initLogger(cfg *config.Config, name serviceName) error {
	if err := logger.Init(cfg.LogLevel); err != nil {
		return err
	}
	logger.SetServiceName(string(name))
	return nil
}

func initTracing(lc fx.Lifecycle, cfg *config.Config, name serviceName) error {
	tracing.SetServiceName("perpbot-" + string(name))
	_, closeTracer, err := tracing.InitTracer(tracing.Config{Host: cfg.Jaeger.Host, Port: cfg.Jaeger.Port})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeTracer()
			logger.Sync()
			return nil
		},
	})
	return nil
}

// runApp блокируется до SIGINT/SIGTERM.
func runApp(opts ...fx.Option) error {
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}
