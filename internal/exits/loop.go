package exits

import (
	"context"
	"fmt"
	"time"

	"perp_bot/internal/execution"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/store"
	"perp_bot/pkg/logger"

	"golang.org/x/sync/errgroup"
)

type Venue interface {
	LastPrice(ctx context.Context, asset string) (float64, error)
	Account(ctx context.Context) (models.AccountState, error)
	OpenOrders(ctx context.Context) ([]models.OpenOrder, error)
}

type Closer interface {
	Close(ctx context.Context, pos models.Position, intent models.ExitIntent) (execution.ExitResult, error)
	// Settle закрывает записи позиции, которую биржа уже закрыла сама.
	Settle(ctx context.Context, pos models.Position, reason string, ref float64) execution.ExitResult
}

// Loop ведёт выходы одного бота: двигает watermark, подтверждает
// отложенные входы и закрывает позиции по сработавшим условиям.
type Loop struct {
	strategy   models.StrategyConfig
	venue      Venue
	closer     Closer
	store      *store.Lifecycle
	cfg        config.ExitsConfig
	pendingTTL time.Duration
	now        func() time.Time
}

func NewLoop(strategy models.StrategyConfig, venue Venue, closer Closer, st *store.Lifecycle, cfg config.ExitsConfig, pendingTTL time.Duration) *Loop {
	return &Loop{
		strategy:   strategy,
		venue:      venue,
		closer:     closer,
		store:      st,
		cfg:        cfg,
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

func (l *Loop) Component() string { return "exits:" + l.strategy.BotID }

// Tick: один проход по позициям бота. Ошибки по отдельным позициям только логируются.
func (l *Loop) Tick(ctx context.Context) error {
	all, err := l.store.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	var mine []models.Position
	for _, p := range all {
		if p.BotID == l.strategy.BotID {
			mine = append(mine, p)
		}
	}

	if len(mine) == 0 {
		return l.status(ctx, 0)
	}

	orders, err := l.restingOrders(ctx)
	if err != nil {
		return fmt.Errorf("open orders: %w", err)
	}
	acct, err := l.venue.Account(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if l.cfg.Concurrency > 0 {
		g.SetLimit(l.cfg.Concurrency)
	}
	for _, p := range mine {
		g.Go(func() error {
			switch _, live := acct.Position(p.Asset); {
			case p.Pending:
				l.settlePending(gctx, p, acct, orders.entries)
			case !live:
				l.settleClosed(gctx, p)
			default:
				l.evaluate(gctx, p, orders.exits[p.Asset])
			}
			return nil
		})
	}
	_ = g.Wait()

	return l.status(ctx, len(mine))
}

func (l *Loop) status(ctx context.Context, n int) error {
	if err := l.store.SetStatus(ctx, store.ComponentStatus{
		Component: l.Component(),
		State:     "running",
		Detail:    fmt.Sprintf("%d positions", n),
	}); err != nil {
		logger.Warn("status: %v", err)
	}
	return nil
}

// resting: висящие лимитки по активам. entries: GTC-входы, exits: отложенные закрытия.
type resting struct {
	entries map[string]bool
	exits   map[string]bool
}

func (l *Loop) restingOrders(ctx context.Context) (resting, error) {
	orders, err := l.venue.OpenOrders(ctx)
	if err != nil {
		return resting{}, err
	}
	out := resting{entries: map[string]bool{}, exits: map[string]bool{}}
	for _, o := range orders {
		if o.ReduceOnly {
			out.exits[o.Asset] = true
		} else {
			out.entries[o.Asset] = true
		}
	}
	return out, nil
}

// evaluate двигает watermark и закрывает позицию по сработавшему условию.
// Пока висит прошлый закрывающий ордер, второй не ставим.
func (l *Loop) evaluate(ctx context.Context, pos models.Position, closing bool) {
	price, err := l.venue.LastPrice(ctx, pos.Asset)
	if err != nil {
		logger.Warn("%s: price: %v", pos.Asset, err)
		return
	}

	if pos.Touch(price) {
		if err := l.store.SavePosition(ctx, pos); err != nil {
			logger.Warn("%s: save watermark: %v", pos.Asset, err)
		}
	}

	if closing {
		logger.Debug("%s: close order still resting", pos.Asset)
		return
	}

	intent := Evaluate(price, pos, l.strategy)
	if intent == nil {
		return
	}

	logger.Info("%s: %s at %v (entry=%v hwm=%v)", pos.Asset, intent.Reason, price, pos.EntryPrice, pos.HighWaterMark)
	res, err := l.closer.Close(ctx, pos, *intent)
	switch {
	case err != nil:
		logger.Error("%s: close: %v", pos.Asset, err)
	case res.Deferred:
		logger.Info("%s: close deferred", pos.Asset)
	}
}

// settleClosed: позиции на бирже больше нет (сработала нога лестницы,
// ликвидация). Записи закрываем сразу, опорная цена последняя известная.
func (l *Loop) settleClosed(ctx context.Context, pos models.Position) {
	ref, err := l.venue.LastPrice(ctx, pos.Asset)
	if err != nil || ref <= 0 {
		ref = pos.EntryPrice
	}
	logger.Info("%s: position gone on venue, settling records", pos.Asset)
	res := l.closer.Settle(ctx, pos, models.ExitVenueClosed, ref)
	logger.Debug("%s: settled, pnl=%.4f", pos.Asset, res.PnL)
}

// settlePending: GTC-вход исполнился, значит переводим позицию в активную и
// подтверждаем сделку; не исполнился за pendingTTL и ордера нет, значит снимаем.
func (l *Loop) settlePending(ctx context.Context, pos models.Position, acct models.AccountState, entries map[string]bool) {
	if live, ok := acct.Position(pos.Asset); ok {
		pos.Pending = false
		pos.Quantity = live.Abs()
		if live.EntryPrice > 0 {
			pos.EntryPrice = live.EntryPrice
		}
		pos.HighWaterMark = pos.EntryPrice
		if err := l.store.SavePosition(ctx, pos); err != nil {
			logger.Error("%s: promote position: %v", pos.Asset, err)
			return
		}
		_, err := l.store.UpdateTrade(ctx, pos.TradeID, func(t *models.TradeRecord) error {
			return t.Confirm(pos.EntryPrice, pos.Quantity, live.Leverage)
		})
		if err != nil {
			logger.Error("%s: confirm trade %s: %v", pos.Asset, pos.TradeID, err)
		}
		logger.Info("%s: resting entry filled, qty=%v px=%v", pos.Asset, pos.Quantity, pos.EntryPrice)
		return
	}

	if entries[pos.Asset] || l.now().Sub(pos.OpenedAt) <= l.pendingTTL {
		return
	}

	logger.Warn("%s: resting entry never filled, dropping", pos.Asset)
	if err := l.store.ClearAsset(ctx, pos.Asset); err != nil {
		logger.Error("%s: clear: %v", pos.Asset, err)
	}
	_, err := l.store.UpdateTrade(ctx, pos.TradeID, func(t *models.TradeRecord) error {
		return t.Fail("entry order expired unfilled")
	})
	if err != nil {
		logger.Error("%s: fail trade %s: %v", pos.Asset, pos.TradeID, err)
	}
}
