package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"perp_bot/internal/helper"
	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
	"perp_bot/internal/risk"
	"perp_bot/internal/store"
	"perp_bot/pkg/logger"
)

type ExitResult struct {
	Closed      bool
	AlreadyFlat bool
	Deferred    bool
	Fill        Fill
	PnL         float64
}

type ExitExecutor struct {
	venue    Venue
	placer   *Placer
	guards   *risk.Guards
	store    *store.Lifecycle
	journal  Journal
	cooldown time.Duration
	now      func() time.Time
}

func NewExitExecutor(venue Venue, placer *Placer, guards *risk.Guards, st *store.Lifecycle, journal Journal, cooldown time.Duration) *ExitExecutor {
	return &ExitExecutor{
		venue:    venue,
		placer:   placer,
		guards:   guards,
		store:    st,
		journal:  journal,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Close закрывает всю живую позицию по активу. Количество берётся с биржи,
// а не из сохранённой Position.
func (x *ExitExecutor) Close(ctx context.Context, pos models.Position, intent models.ExitIntent) (ExitResult, error) {
	acct, err := x.venue.Account(ctx)
	if err != nil {
		return ExitResult{}, fmt.Errorf("exit %s: account: %w", pos.Asset, err)
	}

	live, ok := acct.Position(pos.Asset)
	if !ok {
		return x.Settle(ctx, pos, models.ExitVenueClosed, intent.Price), nil
	}

	meta, err := x.venue.AssetMeta(ctx, pos.Asset)
	if err != nil {
		return ExitResult{}, fmt.Errorf("exit %s: meta: %w", pos.Asset, err)
	}

	// дневной лимит на закрытие не действует
	qty := live.Abs()
	dec := x.guards.CheckClose(risk.GuardInput{
		Account: acct,
		Qty:     qty,
		Price:   intent.Price,
		Meta:    meta,
	})
	if !dec.CanTrade {
		x.failTrade(ctx, pos.TradeID, "exit blocked: "+dec.Reason)
		return ExitResult{}, fmt.Errorf("exit %s blocked: %s", pos.Asset, dec.Reason)
	}

	entry := live.EntryPrice
	if entry <= 0 {
		entry = pos.EntryPrice
	}
	dir := live.Direction()

	fill, err := x.placer.Place(ctx, Request{
		Asset:         pos.Asset,
		IsBuy:         dir == models.SideShort,
		Qty:           qty,
		SizeDecimals:  meta.SizeDecimals,
		PriceDecimals: meta.PriceDecimals,
		ReduceOnly:    true,
		Purpose:       PurposeExit,
	})
	if err != nil {
		return ExitResult{Fill: fill}, err
	}
	if fill.Outcome == OutcomeResting {
		logger.Info("exit %s: close order %s resting, trade stays confirmed", pos.Asset, fill.OrderID)
		return ExitResult{Deferred: true, Fill: fill}, nil
	}

	pnl := models.RealizedPnL(dir, entry, fill.Price, fill.Qty)
	metrics.Exits.WithLabelValues(intent.Reason).Inc()

	if rest := helper.RoundTo(qty-fill.Qty, meta.SizeDecimals); rest > 0 && rest >= meta.MinSize {
		x.partial(ctx, pos, fill, rest, pnl)
		return ExitResult{Deferred: true, Fill: fill, PnL: pnl}, nil
	}

	pos.EntryPrice = entry
	x.finish(ctx, pos, intent.Reason, fill.Price, pnl, true)
	return ExitResult{Closed: true, Fill: fill, PnL: pnl}, nil
}

// Settle закрывает записи позиции, которую биржа уже закрыла сама: сработала
// нога лестницы, ликвидация или закрытие руками. PnL берётся из истории
// позиций биржи. Без неё сделка закрывается по опорной цене ref, а дневной
// счётчик не трогается: выдуманный PnL хуже пропуска.
func (x *ExitExecutor) Settle(ctx context.Context, pos models.Position, reason string, ref float64) ExitResult {
	metrics.Exits.WithLabelValues(reason).Inc()

	cp, found, err := x.venue.ClosedPosition(ctx, pos.Asset, pos.OpenedAt)
	if err != nil {
		logger.Warn("exit %s: positions history: %v", pos.Asset, err)
	}
	if !found {
		logger.Warn("exit %s: flat on venue, realized pnl unknown, closing records at %v", pos.Asset, ref)
		x.finish(ctx, pos, reason, ref, 0, false)
		return ExitResult{Closed: true, AlreadyFlat: true}
	}

	// частичные закрытия уже учтены в сделке и в счётчике
	var booked float64
	if t, err := x.store.GetTrade(ctx, pos.TradeID); err == nil {
		booked = t.PnL
	}
	pnl := cp.RealizedPnL - booked
	price := cp.ExitPrice
	if price <= 0 {
		price = ref
	}
	logger.Info("exit %s: closed on venue at %v, realized %.4f", pos.Asset, price, cp.RealizedPnL)
	x.finish(ctx, pos, reason, price, pnl, true)
	return ExitResult{Closed: true, AlreadyFlat: true, PnL: pnl}
}

// partial: IOC закрыл часть. Учитываем PnL части, позицию уменьшаем,
// остаток закроет следующая оценка.
func (x *ExitExecutor) partial(ctx context.Context, pos models.Position, fill Fill, rest, pnl float64) {
	logger.Warn("exit %s: partial close %v, %v left", pos.Asset, fill.Qty, rest)
	x.applyPnL(ctx, pnl)

	pos.Quantity = rest
	if err := x.store.SavePosition(ctx, pos); err != nil {
		logger.Error("exit %s: save reduced position: %v", pos.Asset, err)
	}
	_, err := x.store.UpdateTrade(ctx, pos.TradeID, func(t *models.TradeRecord) error {
		t.PnL += pnl
		return nil
	})
	if err != nil {
		logger.Error("exit %s: trade %s: %v", pos.Asset, pos.TradeID, err)
	}
}

// finish: бухгалтерия полного закрытия. Каждый шаг best-effort.
// book=false: PnL неизвестен, дневной счётчик не трогаем.
func (x *ExitExecutor) finish(ctx context.Context, pos models.Position, reason string, exitPrice, pnl float64, book bool) {
	now := x.now()
	if book {
		x.applyPnL(ctx, pnl)
	}

	t, err := x.store.UpdateTrade(ctx, pos.TradeID, func(t *models.TradeRecord) error {
		if err := t.Close(exitPrice, t.PnL+pnl, now.UTC()); err != nil {
			return err
		}
		t.Reason = reason
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Error("exit %s: trade record %s missing", pos.Asset, pos.TradeID)
	case err != nil:
		logger.Error("exit %s: close trade %s: %v", pos.Asset, pos.TradeID, err)
	default:
		record(ctx, x.journal, t)
	}

	if err := x.store.ClearAsset(ctx, pos.Asset); err != nil {
		logger.Error("exit %s: clear records: %v", pos.Asset, err)
	}
	if x.cooldown > 0 {
		if err := x.store.SetCooldown(ctx, pos.Asset, now.Add(x.cooldown)); err != nil {
			logger.Warn("exit %s: cooldown: %v", pos.Asset, err)
		}
	}
	if n, err := x.venue.CancelTriggers(ctx, pos.Asset); err != nil {
		logger.Warn("exit %s: cancel leftover triggers: %v", pos.Asset, err)
	} else if n > 0 {
		logger.Info("exit %s: cancelled %d leftover triggers", pos.Asset, n)
	}

	logger.Info("exit %s (%s): closed at %v, pnl=%.4f", pos.Asset, reason, exitPrice, pnl)
}

func (x *ExitExecutor) applyPnL(ctx context.Context, pnl float64) {
	v, err := x.store.ApplyRealizedPnL(ctx, pnl)
	if err != nil {
		logger.Error("daily loss update (pnl=%.4f): %v", pnl, err)
		return
	}
	metrics.DailyLoss.Set(v)
}

func (x *ExitExecutor) failTrade(ctx context.Context, tradeID, reason string) {
	t, err := x.store.UpdateTrade(ctx, tradeID, func(t *models.TradeRecord) error {
		return t.Fail(reason)
	})
	if err != nil {
		logger.Error("trade %s: mark failed: %v", tradeID, err)
		return
	}
	record(ctx, x.journal, t)
}
