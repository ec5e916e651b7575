package redis

import (
	"context"
	"fmt"
	"time"

	"perp_bot/internal/modules/config"
	"perp_bot/internal/store"
	"perp_bot/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func NewClient(cfg *config.Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Module поднимает клиент Redis и Lifecycle Store поверх него.
func Module() fx.Option {
	return fx.Module("redis",
		fx.Provide(
			NewClient,
			func(c *goredis.Client) store.KV { return store.NewRedisKV(c) },
			store.New,
		),
		fx.Invoke(func(lc fx.Lifecycle, c *goredis.Client, cfg *config.Config) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := c.Ping(ctx).Err(); err != nil {
						return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
					}
					logger.Info("redis connected: %s db=%d", cfg.Redis.Addr, cfg.Redis.DB)
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return c.Close()
				},
			})
		}),
	)
}
