package ladder

import (
	"fmt"
	"math"

	"perp_bot/internal/helper"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
)

// Target: куда и сколько ставить ногу.
type Target struct {
	Price float64
	Qty   float64
}

// legPrice: тейки и раннер в сторону прибыли, стоп в сторону убытка.
func legPrice(l *models.PendingExitLadder, leg *models.Leg) float64 {
	sign := 1.0
	if leg.Kind == models.LegStopLoss {
		sign = -1
	}
	if l.Direction == models.SideShort {
		sign = -sign
	}
	return helper.RoundTo(l.EntryPrice*(1+sign*leg.Pct/100), l.PriceDecimals)
}

// legQty делит живой размер: тейки делят поровну всё, кроме доли раннера;
// раннер и стоп берут свои доли.
func legQty(l *models.PendingExitLadder, leg *models.Leg, liveQty float64, cfg config.LadderConfig) float64 {
	var q float64
	switch leg.Kind {
	case models.LegTakeProfit:
		if n := len(l.TakeProfits); n > 0 {
			q = liveQty * (1 - cfg.RunnerFraction) / float64(n)
		}
	case models.LegRunner:
		q = liveQty * cfg.RunnerFraction
	case models.LegStopLoss:
		q = liveQty * cfg.StopLossFraction
	}
	return helper.FloorTo(q, l.SizeDecimals)
}

// Plan считает цель ноги и проверяет её: объём не меньше минимального,
// цена не дальше MaxDeviationPct от входа.
func Plan(l *models.PendingExitLadder, leg *models.Leg, liveQty float64, meta models.AssetMeta, cfg config.LadderConfig) (Target, error) {
	t := Target{
		Price: legPrice(l, leg),
		Qty:   legQty(l, leg, liveQty, cfg),
	}

	if t.Qty <= 0 || t.Qty < meta.MinSize {
		return t, fmt.Errorf("%s: qty %v below min size %v", leg.Name, t.Qty, meta.MinSize)
	}
	if t.Price <= 0 || l.EntryPrice <= 0 {
		return t, fmt.Errorf("%s: bad price %v (entry %v)", leg.Name, t.Price, l.EntryPrice)
	}
	if dev := math.Abs(t.Price-l.EntryPrice) / l.EntryPrice * 100; cfg.MaxDeviationPct > 0 && dev > cfg.MaxDeviationPct {
		return t, fmt.Errorf("%s: price %v is %.1f%% from entry, limit %.1f%%", leg.Name, t.Price, dev, cfg.MaxDeviationPct)
	}
	return t, nil
}

func triggerKind(k models.LegKind) models.TriggerKind {
	if k == models.LegStopLoss {
		return models.TriggerStopLoss
	}
	return models.TriggerTakeProfit
}
