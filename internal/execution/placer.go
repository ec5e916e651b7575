package execution

import (
	"context"
	"errors"
	"fmt"

	"perp_bot/internal/helper"
	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/pkg/logger"
	"perp_bot/pkg/tracing"
)

var ErrPlacementFailed = errors.New("order placement failed")

type Outcome string

const (
	OutcomeFilled  Outcome = "filled"
	OutcomeResting Outcome = "resting"
	OutcomeFailed  Outcome = "failed"
)

const (
	PurposeEntry = "entry"
	PurposeExit  = "exit"
)

type Request struct {
	Asset         string
	IsBuy         bool
	Qty           float64
	SizeDecimals  int
	PriceDecimals int
	ReduceOnly    bool
	Purpose       string
}

// Fill: итог протокола. Step 1 и 2 это IOC, 3 это GTC.
type Fill struct {
	Outcome Outcome
	Step    int
	OrderID string
	Qty     float64
	Price   float64
}

// Placer ведёт ордер по лестнице: IOC через стакан, повторный IOC агрессивнее,
// затем GTC ровно по лучшей цене своей стороны.
type Placer struct {
	market Market
	cfg    config.ExecutionConfig
}

func NewPlacer(market Market, cfg config.ExecutionConfig) *Placer {
	return &Placer{market: market, cfg: cfg}
}

func (p *Placer) Place(ctx context.Context, req Request) (Fill, error) {
	ctx, finish := tracing.Start(ctx, "execution.place", map[string]any{
		"asset":   req.Asset,
		"buy":     req.IsBuy,
		"qty":     req.Qty,
		"purpose": req.Purpose,
	})
	fill, err := p.place(ctx, req)
	finish(err)

	purpose := req.Purpose
	if purpose == "" {
		purpose = PurposeEntry
	}
	metrics.Orders.WithLabelValues(string(fill.Outcome), purpose).Inc()
	return fill, err
}

func (p *Placer) place(ctx context.Context, req Request) (Fill, error) {
	if req.Qty <= 0 {
		return Fill{Outcome: OutcomeFailed}, fmt.Errorf("%w: %s: empty quantity", ErrPlacementFailed, req.Asset)
	}

	for i, eps := range []float64{p.cfg.IOCSlippage, p.cfg.RetrySlippage} {
		step := i + 1
		fill, err := p.ioc(ctx, req, eps)
		if err != nil {
			logger.Warn("%s %s: IOC step %d: %v", req.Purpose, req.Asset, step, err)
			continue
		}
		if fill.Qty > 0 {
			fill.Step = step
			return fill, nil
		}
		logger.Info("%s %s: IOC step %d not filled", req.Purpose, req.Asset, step)
	}

	fill, err := p.resting(ctx, req)
	fill.Step = 3
	if err != nil {
		fill.Outcome = OutcomeFailed
		return fill, fmt.Errorf("%w: %s: %v", ErrPlacementFailed, req.Asset, err)
	}
	return fill, nil
}

func (p *Placer) stepCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.StepTimeout)
}

func (p *Placer) book(ctx context.Context, asset string) (models.Book, error) {
	book, err := p.market.Book(ctx, asset)
	if err != nil {
		return book, err
	}
	if !book.Valid() {
		return book, fmt.Errorf("empty book for %s", asset)
	}
	return book, nil
}

// aggressivePrice: цена на eps за лучшей ценой противоположной стороны.
// Покупку округляем вверх, продажу вниз, чтобы не потерять пересечение.
func aggressivePrice(b models.Book, isBuy bool, eps float64, decimals int) float64 {
	if isBuy {
		return helper.CeilTo(b.BestAsk*(1+eps), decimals)
	}
	return helper.FloorTo(b.BestBid*(1-eps), decimals)
}

func (p *Placer) ioc(ctx context.Context, req Request, eps float64) (Fill, error) {
	ctx, cancel := p.stepCtx(ctx)
	defer cancel()

	book, err := p.book(ctx, req.Asset)
	if err != nil {
		return Fill{}, err
	}
	px := aggressivePrice(book, req.IsBuy, eps, req.PriceDecimals)

	res, err := p.market.PlaceOrder(ctx, models.Order{
		Asset:      req.Asset,
		IsBuy:      req.IsBuy,
		Qty:        req.Qty,
		Price:      px,
		TIF:        models.TIFIOC,
		ReduceOnly: req.ReduceOnly,
	})
	if err != nil {
		return Fill{}, err
	}
	if res.FilledQty <= 0 {
		return Fill{OrderID: res.OrderID}, nil
	}
	return tidy(req, res, px, OutcomeFilled), nil
}

func (p *Placer) resting(ctx context.Context, req Request) (Fill, error) {
	ctx, cancel := p.stepCtx(ctx)
	defer cancel()

	book, err := p.book(ctx, req.Asset)
	if err != nil {
		return Fill{}, err
	}
	px := book.BestAsk
	if req.IsBuy {
		px = book.BestBid
	}
	px = helper.RoundTo(px, req.PriceDecimals)

	res, err := p.market.PlaceOrder(ctx, models.Order{
		Asset:      req.Asset,
		IsBuy:      req.IsBuy,
		Qty:        req.Qty,
		Price:      px,
		TIF:        models.TIFGTC,
		ReduceOnly: req.ReduceOnly,
	})
	if err != nil {
		return Fill{}, err
	}

	if !res.Resting && helper.RoundTo(res.FilledQty, req.SizeDecimals) >= helper.RoundTo(req.Qty, req.SizeDecimals) {
		return tidy(req, res, px, OutcomeFilled), nil
	}
	return Fill{
		Outcome: OutcomeResting,
		OrderID: res.OrderID,
		Qty:     helper.RoundTo(req.Qty, req.SizeDecimals),
		Price:   px,
	}, nil
}

// tidy приводит количество и цену исполнения к точности актива.
func tidy(req Request, res models.OrderResult, quoted float64, outcome Outcome) Fill {
	price := res.AvgPrice
	if price <= 0 {
		price = quoted
	}
	return Fill{
		Outcome: outcome,
		OrderID: res.OrderID,
		Qty:     helper.RoundTo(res.FilledQty, req.SizeDecimals),
		Price:   helper.RoundTo(price, req.PriceDecimals),
	}
}
