package journal

import (
	"context"
	"time"

	"perp_bot/internal/execution"
	"perp_bot/pkg/logger"
	"perp_bot/pkg/loop"

	"go.uber.org/fx"
)

func migrate(lc fx.Lifecycle, j *Journal) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !j.Enabled() {
				return nil
			}
			if err := j.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("trade journal ready")
			return nil
		},
	})
}

// Module: журнал сделок и ежедневный сброс.
func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			New,
			func(j *Journal) execution.Journal { return j },
			NewDailyJob,
		),
		fx.Invoke(migrate),
	)
}

// ScheduleReset проверяет раз в минуту, не наступили ли новые сутки UTC.
func ScheduleReset(lc fx.Lifecycle, d *DailyJob) {
	loop.Hook(lc, "daily-reset", time.Minute, func(ctx context.Context) error {
		_, err := d.RunIfDue(ctx)
		return err
	}, nil)
}
