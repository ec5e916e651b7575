package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"perp_bot/internal/metrics"
	"perp_bot/internal/notify"
	"perp_bot/internal/store"
	"perp_bot/pkg/logger"
)

const ResetComponent = "daily-reset"

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatSummary: сводка PnL по стратегиям для уведомления.
func FormatSummary(day time.Time, rows []BotPnL, dailyLoss float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 PnL %s\n", day.Format("2006-01-02"))
	if len(rows) == 0 {
		b.WriteString("no closed trades\n")
	}
	var total float64
	for _, r := range rows {
		total += r.PnL
		fmt.Fprintf(&b, "%s: %+.2f USDT, closed %d (W%d/L%d), failed %d\n",
			r.BotID, r.PnL, r.Closed, r.Wins, r.Losses, r.Failed)
	}
	fmt.Fprintf(&b, "total %+.2f USDT, daily loss counter %.2f", total, dailyLoss)
	return b.String()
}

// DailyJob шлёт сводку за прошедшие сутки и обнуляет счётчик дневного убытка.
type DailyJob struct {
	journal  *Journal
	store    *store.Lifecycle
	notifier notify.Notifier
	now      func() time.Time
	lastDay  time.Time
}

func NewDailyJob(j *Journal, st *store.Lifecycle, n notify.Notifier) *DailyJob {
	d := &DailyJob{journal: j, store: st, notifier: n, now: time.Now}
	d.lastDay = dayStart(d.now())
	return d
}

// RunIfDue срабатывает один раз после каждой полуночи UTC.
func (d *DailyJob) RunIfDue(ctx context.Context) (bool, error) {
	today := dayStart(d.now())
	if !today.After(d.lastDay) {
		return false, nil
	}
	if err := d.Run(ctx); err != nil {
		return false, err
	}
	d.lastDay = today
	return true, nil
}

func (d *DailyJob) Run(ctx context.Context) error {
	since := dayStart(d.now()).Add(-24 * time.Hour)

	loss, err := d.store.DailyLoss(ctx)
	if err != nil {
		logger.Warn("daily reset: read counter: %v", err)
	}

	rows, err := d.journal.Summary(ctx, since)
	if err != nil {
		logger.Error("daily reset: summary: %v", err)
	} else {
		notify.Sendf(ctx, d.notifier, "%s", FormatSummary(since, rows, loss))
	}

	if err := d.store.ResetDailyLoss(ctx); err != nil {
		return fmt.Errorf("reset daily loss: %w", err)
	}
	metrics.DailyLoss.Set(0)

	if err := d.store.SetStatus(ctx, store.ComponentStatus{
		Component: ResetComponent,
		State:     "done",
		Detail:    fmt.Sprintf("counter was %.2f", loss),
	}); err != nil {
		logger.Warn("daily reset: status: %v", err)
	}
	logger.Info("daily loss counter reset (was %.2f)", loss)
	return nil
}
