package ladder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/store"
	"perp_bot/pkg/logger"
	"perp_bot/pkg/retry"
	"perp_bot/pkg/tracing"
)

const Component = "reconciler"

type Venue interface {
	Account(ctx context.Context) (models.AccountState, error)
	AssetMeta(ctx context.Context, asset string) (models.AssetMeta, error)
	PlaceTrigger(ctx context.Context, o models.TriggerOrder) (string, error)
}

// SweepStats: итог одного прохода.
type SweepStats struct {
	Ladders   int
	Placed    int
	Failed    int
	Invalid   int
	Completed int
	Expired   int
}

func (s SweepStats) String() string {
	return fmt.Sprintf("ladders=%d placed=%d failed=%d invalid=%d completed=%d expired=%d",
		s.Ladders, s.Placed, s.Failed, s.Invalid, s.Completed, s.Expired)
}

// Reconciler периодически доставляет ноги лестниц выхода на биржу.
// Флаг placed у ноги разрешает ровно одну успешную отправку.
type Reconciler struct {
	venue Venue
	store *store.Lifecycle
	cfg   config.LadderConfig
	now   func() time.Time
}

func NewReconciler(venue Venue, st *store.Lifecycle, cfg config.LadderConfig) *Reconciler {
	return &Reconciler{venue: venue, store: st, cfg: cfg, now: time.Now}
}

func (r *Reconciler) policy() retry.Policy {
	return retry.Policy{Attempts: r.cfg.Attempts, BaseDelay: r.cfg.BaseDelay, Factor: r.cfg.Factor}
}

func (r *Reconciler) Sweep(ctx context.Context) (stats SweepStats, err error) {
	ctx, finish := tracing.Start(ctx, "ladder.sweep", nil)
	defer func() { finish(err) }()

	assets, err := r.store.LadderAssets(ctx)
	if err != nil {
		return stats, fmt.Errorf("list ladders: %w", err)
	}
	if len(assets) == 0 {
		return stats, r.status(ctx, stats)
	}

	acct, err := r.venue.Account(ctx)
	if err != nil {
		return stats, fmt.Errorf("account: %w", err)
	}

	for _, asset := range assets {
		if ctx.Err() != nil {
			break
		}
		stats.Ladders++
		r.reconcile(ctx, asset, acct, &stats)
	}

	if stats.Placed+stats.Failed+stats.Expired > 0 {
		logger.Info("sweep: %s", stats)
	}
	return stats, r.status(ctx, stats)
}

func (r *Reconciler) status(ctx context.Context, stats SweepStats) error {
	return r.store.SetStatus(ctx, store.ComponentStatus{
		Component: Component,
		State:     "running",
		Detail:    stats.String(),
	})
}

func (r *Reconciler) reconcile(ctx context.Context, asset string, acct models.AccountState, stats *SweepStats) {
	l, err := r.store.GetLadder(ctx, asset)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Error("ladder %s: read: %v", asset, err)
		return
	}

	live, ok := acct.Position(asset)
	if !ok {
		if l.Expired(r.now(), r.cfg.Expiry) {
			logger.Info("ladder %s: no position after %s, dropping", asset, r.cfg.Expiry)
			if err := r.store.DeleteLadder(ctx, asset); err != nil {
				logger.Error("ladder %s: delete: %v", asset, err)
			}
			stats.Expired++
		}
		return
	}

	meta, err := r.venue.AssetMeta(ctx, asset)
	if err != nil {
		logger.Warn("ladder %s: meta: %v", asset, err)
		return
	}

	for _, leg := range l.Legs() {
		if leg.Placed || ctx.Err() != nil {
			continue
		}
		r.placeLeg(ctx, &l, leg, live.Abs(), meta, stats)

		// после каждой попытки, чтобы рестарт не переставил уже принятую ногу
		if err := r.store.SaveLadder(ctx, l); err != nil {
			logger.Error("ladder %s: persist %s: %v", asset, leg.Name, err)
		}
	}

	if l.Complete() {
		if err := r.store.DeleteLadder(ctx, asset); err != nil {
			logger.Error("ladder %s: delete completed: %v", asset, err)
			return
		}
		stats.Completed++
		logger.Info("ladder %s: all legs placed", asset)
	}
}

func (r *Reconciler) placeLeg(ctx context.Context, l *models.PendingExitLadder, leg *models.Leg, liveQty float64, meta models.AssetMeta, stats *SweepStats) {
	if leg.Pct <= 0 {
		// нога не настроена: ставить нечего
		leg.Placed = true
		return
	}

	target, err := Plan(l, leg, liveQty, meta, r.cfg)
	if err != nil {
		leg.LastError = err.Error()
		stats.Invalid++
		metrics.LadderLegs.WithLabelValues(string(leg.Kind), "invalid").Inc()
		logger.Warn("ladder %s: %v", l.Asset, err)
		return
	}
	leg.Price, leg.Qty = target.Price, target.Qty

	order := models.TriggerOrder{
		Asset:        l.Asset,
		IsBuy:        l.Direction == models.SideShort,
		Qty:          target.Qty,
		TriggerPrice: target.Price,
		Kind:         triggerKind(leg.Kind),
	}

	var id string
	res := retry.Do(ctx, r.policy(), func(ctx context.Context) error {
		var err error
		id, err = r.venue.PlaceTrigger(ctx, order)
		return err
	})
	leg.Attempts += res.Attempts

	if !res.OK() {
		leg.LastError = res.Err.Error()
		stats.Failed++
		metrics.LadderLegs.WithLabelValues(string(leg.Kind), "failed").Inc()
		logger.Warn("ladder %s: %s failed after %d attempts: %v", l.Asset, leg.Name, res.Attempts, res.Err)
		return
	}

	leg.Placed = true
	leg.OrderID = id
	leg.LastError = ""
	stats.Placed++
	metrics.LadderLegs.WithLabelValues(string(leg.Kind), "placed").Inc()
	logger.Info("ladder %s: %s placed %v @ %v (%s)", l.Asset, leg.Name, target.Qty, target.Price, id)
}
