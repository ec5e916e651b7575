package execution

import (
	"context"
	"fmt"
	"time"

	"perp_bot/internal/models"
	"perp_bot/internal/store"
	"perp_bot/pkg/logger"
)

// EntryRequest: допущенный, посчитанный и прошедший проверки сигнал.
type EntryRequest struct {
	TradeID  string
	Signal   models.TradeSignal
	Qty      float64
	Leverage int
	Meta     models.AssetMeta
	Strategy models.StrategyConfig
}

type EntryExecutor struct {
	venue   Venue
	placer  *Placer
	store   *store.Lifecycle
	journal Journal
	now     func() time.Time
}

func NewEntryExecutor(venue Venue, placer *Placer, st *store.Lifecycle, journal Journal) *EntryExecutor {
	return &EntryExecutor{venue: venue, placer: placer, store: st, journal: journal, now: time.Now}
}

// Execute выставляет вход и записывает лестницу и позицию.
// Сохранение после исполнения best-effort: уже открытую позицию ничто не откатывает.
func (e *EntryExecutor) Execute(ctx context.Context, req EntryRequest) (Fill, error) {
	sig := req.Signal

	if err := e.venue.SetLeverage(ctx, sig.Asset, req.Leverage); err != nil {
		e.fail(ctx, req.TradeID, fmt.Sprintf("set leverage: %v", err))
		return Fill{Outcome: OutcomeFailed}, fmt.Errorf("set leverage %s x%d: %w", sig.Asset, req.Leverage, err)
	}

	fill, err := e.placer.Place(ctx, Request{
		Asset:         sig.Asset,
		IsBuy:         sig.Side.EntryIsBuy(),
		Qty:           req.Qty,
		SizeDecimals:  req.Meta.SizeDecimals,
		PriceDecimals: req.Meta.PriceDecimals,
		Purpose:       PurposeEntry,
	})
	if err != nil {
		e.fail(ctx, req.TradeID, err.Error())
		return fill, err
	}

	now := e.now().UTC()
	e.saveLadder(ctx, req, fill, now)

	pos := models.Position{
		Asset:         sig.Asset,
		BotID:         sig.BotID,
		TradeID:       req.TradeID,
		Direction:     sig.Side,
		Quantity:      fill.Qty,
		EntryPrice:    fill.Price,
		HighWaterMark: fill.Price,
		Pending:       fill.Outcome == OutcomeResting,
		OpenedAt:      now,
	}
	if err := e.store.SavePosition(ctx, pos); err != nil {
		logger.Error("entry %s: save position: %v", sig.Asset, err)
	}

	if fill.Outcome == OutcomeResting {
		logger.Info("entry %s %s resting: order %s qty=%v px=%v", sig.Side, sig.Asset, fill.OrderID, fill.Qty, fill.Price)
		return fill, nil
	}

	_, err = e.store.UpdateTrade(ctx, req.TradeID, func(t *models.TradeRecord) error {
		return t.Confirm(fill.Price, fill.Qty, req.Leverage)
	})
	if err != nil {
		logger.Error("entry %s: confirm trade %s: %v", sig.Asset, req.TradeID, err)
	}
	logger.Info("entry %s %s filled at step %d: qty=%v px=%v x%d", sig.Side, sig.Asset, fill.Step, fill.Qty, fill.Price, req.Leverage)
	return fill, nil
}

func (e *EntryExecutor) saveLadder(ctx context.Context, req EntryRequest, fill Fill, now time.Time) {
	l := models.NewLadder(models.LadderSpec{
		Asset:          req.Signal.Asset,
		Direction:      req.Signal.Side,
		EntryPrice:     fill.Price,
		TotalQty:       fill.Qty,
		PriceDecimals:  req.Meta.PriceDecimals,
		SizeDecimals:   req.Meta.SizeDecimals,
		TakeProfitPcts: req.Strategy.TakeProfitPcts,
		RunnerPct:      req.Strategy.RunnerPct,
		StopLossPct:    req.Strategy.StopLossPct,
	}, now)
	if err := e.store.SaveLadder(ctx, l); err != nil {
		logger.Error("entry %s: save exit ladder: %v", req.Signal.Asset, err)
	}
}

func (e *EntryExecutor) fail(ctx context.Context, tradeID, reason string) {
	t, err := e.store.UpdateTrade(ctx, tradeID, func(t *models.TradeRecord) error {
		return t.Fail(reason)
	})
	if err != nil {
		logger.Error("trade %s: mark failed: %v", tradeID, err)
		return
	}
	record(ctx, e.journal, t)
}

func record(ctx context.Context, j Journal, t models.TradeRecord) {
	if j == nil {
		return
	}
	if err := j.Record(ctx, t); err != nil {
		logger.Warn("journal %s: %v", t.ID, err)
	}
}
