package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"perp_bot/internal/execution"
	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/notify"
	"perp_bot/internal/risk"
	"perp_bot/internal/store"
	"perp_bot/pkg/logger"
	"perp_bot/pkg/tracing"

	"github.com/google/uuid"
)

const Component = "admission"

type Venue interface {
	Account(ctx context.Context) (models.AccountState, error)
	OpenOrders(ctx context.Context) ([]models.OpenOrder, error)
	AssetMeta(ctx context.Context, asset string) (models.AssetMeta, error)
}

type Entrant interface {
	Execute(ctx context.Context, req execution.EntryRequest) (execution.Fill, error)
}

type Controller struct {
	venue    Venue
	store    *store.Lifecycle
	book     *config.StrategyBook
	guards   *risk.Guards
	entry    Entrant
	notifier notify.Notifier
	cfg      config.AdmissionConfig
	now      func() time.Time
	newID    func() string
}

func NewController(
	venue Venue,
	st *store.Lifecycle,
	book *config.StrategyBook,
	guards *risk.Guards,
	entry Entrant,
	notifier notify.Notifier,
	cfg config.AdmissionConfig,
) *Controller {
	return &Controller{
		venue:    venue,
		store:    st,
		book:     book,
		guards:   guards,
		entry:    entry,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Cycle: один проход допуска. Пока не все продюсеры прислали done, очередь
// не трогаем и возвращаем ready=false. После готовности прочитанные записи снимаются с очереди всегда.
func (c *Controller) Cycle(ctx context.Context) (sum Summary, ready bool, err error) {
	ctx, finish := tracing.Start(ctx, "admission.cycle", nil)
	defer func() { finish(err) }()

	raw, err := c.store.QueueSnapshot(ctx)
	if err != nil {
		return sum, false, fmt.Errorf("queue snapshot: %w", err)
	}
	batch := Decode(raw)
	sum.Considered = len(batch.Signals)
	sum.Malformed = batch.Malformed

	if missing := batch.Missing(c.cfg.ExpectedProducers); len(missing) > 0 {
		logger.Debug("waiting for producers: %s", strings.Join(missing, ","))
		c.status(ctx, "waiting", "missing "+strings.Join(missing, ","))
		return sum, false, nil
	}

	defer func() {
		if cerr := c.store.TrimQueue(ctx, len(raw)); cerr != nil {
			logger.Error("trim queue: %v", cerr)
			if err == nil {
				err = fmt.Errorf("trim queue: %w", cerr)
			}
		}
	}()

	if len(batch.Signals) == 0 {
		c.status(ctx, "idle", "no signals")
		return sum, true, nil
	}

	acct, err := c.venue.Account(ctx)
	if err != nil {
		return sum, true, fmt.Errorf("account: %w", err)
	}
	orders, err := c.venue.OpenOrders(ctx)
	if err != nil {
		return sum, true, fmt.Errorf("open orders: %w", err)
	}

	open, resting := occupancy(acct, orders)
	sum.OpenCount = len(open)

	res := Admit(batch, c.cfg.ExpectedProducers, c.cfg.ConcurrencyCap, len(open), c.blocker(ctx, open, resting))
	sum.Slots = res.Slots
	sum.Skipped = append(sum.Skipped, res.Skipped...)

	for _, sig := range res.Admitted {
		a, skip, err := c.enter(ctx, sig)
		if skip != "" {
			sum.Skipped = append(sum.Skipped, Skip{Signal: sig, Reason: skip})
			continue
		}
		sum.Admitted = append(sum.Admitted, a)
		if errors.Is(err, risk.ErrDailyLossExceeded) {
			return sum, true, err
		}
	}

	c.report(ctx, sum)
	return sum, true, nil
}

// occupancy: активы с живой позицией и активы с лежащим входным ордером.
func occupancy(acct models.AccountState, orders []models.OpenOrder) (open map[string]bool, resting map[string]bool) {
	open = map[string]bool{}
	resting = map[string]bool{}
	for _, p := range acct.Positions {
		if p.Size != 0 {
			open[p.Asset] = true
		}
	}
	for _, o := range orders {
		if o.ReduceOnly {
			continue
		}
		resting[o.Asset] = true
		open[o.Asset] = true
	}
	return open, resting
}

func (c *Controller) blocker(ctx context.Context, open, resting map[string]bool) Blocker {
	now := c.now()
	return func(asset string) string {
		if resting[asset] {
			return ReasonOrderResting
		}
		if open[asset] {
			return ReasonPositionOpen
		}
		has, err := c.store.HasPosition(ctx, asset)
		if err != nil {
			logger.Warn("%s: position lookup: %v", asset, err)
		}
		if has {
			return ReasonPositionOpen
		}
		cd, err := c.store.InCooldown(ctx, asset, now)
		if err != nil {
			logger.Warn("%s: cooldown lookup: %v", asset, err)
		}
		if cd {
			return ReasonCooldown
		}
		return ""
	}
}

// enter: запись сделки, размер, проверки, вход. skip != "" значит сигнал снят до биржи.
func (c *Controller) enter(ctx context.Context, sig models.TradeSignal) (a Admission, skip string, err error) {
	a = Admission{Signal: sig, TradeID: c.newID()}

	strategy, ok := c.book.Lookup(sig.BotID)
	if !ok {
		return a, ReasonNoStrategy, nil
	}
	meta, err := c.venue.AssetMeta(ctx, sig.Asset)
	if err != nil {
		logger.Warn("%s: meta: %v", sig.Asset, err)
		return a, ReasonNoMeta, nil
	}

	if err := c.store.SaveTrade(ctx, models.NewTradeRecord(a.TradeID, sig, c.now().UTC())); err != nil {
		logger.Error("%s: save trade %s: %v", sig.Asset, a.TradeID, err)
	}

	// живое состояние счёта перед каждым решением о деньгах
	acct, err := c.venue.Account(ctx)
	if err != nil {
		c.abort(ctx, &a, fmt.Sprintf("account: %v", err))
		return a, "", nil
	}
	dailyLoss, err := c.store.DailyLoss(ctx)
	if err != nil {
		logger.Warn("daily loss read: %v", err)
	}

	sz := risk.Size(sig.Strength, acct.Equity, strategy.Sizing, meta.MaxLeverage)
	qty := risk.Quantity(sz, sig.Price, meta.SizeDecimals)

	dec, err := c.guards.Check(risk.GuardInput{
		Account:   acct,
		DailyLoss: dailyLoss,
		Qty:       qty,
		Price:     sig.Price,
		Meta:      meta,
	})
	if err != nil {
		c.abort(ctx, &a, dec.Reason)
		return a, "", err
	}
	if !dec.CanTrade {
		c.failTrade(ctx, a.TradeID, dec.Reason)
		return a, dec.Reason, nil
	}
	if dec.Adjusted {
		logger.Info("%s: %s", sig.Asset, dec.Reason)
	}

	a.Qty, a.Leverage = dec.Qty, sz.Leverage
	fill, err := c.entry.Execute(ctx, execution.EntryRequest{
		TradeID:  a.TradeID,
		Signal:   sig,
		Qty:      dec.Qty,
		Leverage: sz.Leverage,
		Meta:     meta,
		Strategy: strategy,
	})
	a.Outcome = string(fill.Outcome)
	if err != nil {
		a.Err = err.Error()
		logger.Error("%s: entry: %v", sig.Asset, err)
	}
	return a, "", nil
}

func (c *Controller) abort(ctx context.Context, a *Admission, reason string) {
	a.Outcome = string(execution.OutcomeFailed)
	a.Err = reason
	c.failTrade(ctx, a.TradeID, reason)
}

func (c *Controller) failTrade(ctx context.Context, id, reason string) {
	_, err := c.store.UpdateTrade(ctx, id, func(t *models.TradeRecord) error { return t.Fail(reason) })
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Error("trade %s: mark failed: %v", id, err)
	}
}

func (c *Controller) report(ctx context.Context, sum Summary) {
	metrics.Signals.WithLabelValues("admitted").Add(float64(len(sum.Admitted)))
	metrics.Signals.WithLabelValues("skipped").Add(float64(len(sum.Skipped)))
	for _, s := range sum.Skipped {
		metrics.Skips.WithLabelValues(skipLabel(s.Reason)).Inc()
	}

	logger.Info("cycle: considered=%d admitted=%d skipped=%d open=%d slots=%d",
		sum.Considered, len(sum.Admitted), len(sum.Skipped), sum.OpenCount, sum.Slots)
	notify.Sendf(ctx, c.notifier, "%s", sum.Text())
	c.status(ctx, "running", fmt.Sprintf("admitted %d of %d", len(sum.Admitted), sum.Considered))
}

func (c *Controller) status(ctx context.Context, state, detail string) {
	if err := c.store.SetStatus(ctx, store.ComponentStatus{Component: Component, State: state, Detail: detail}); err != nil {
		logger.Warn("status: %v", err)
	}
}

// skipLabel: причины проверок содержат числа, в метрику идёт только вид.
func skipLabel(reason string) string {
	switch reason {
	case ReasonNotTopRanked, ReasonDuplicate, ReasonPositionOpen, ReasonOrderResting,
		ReasonCooldown, ReasonNoMeta, ReasonNoStrategy:
		return reason
	}
	return "guard"
}
