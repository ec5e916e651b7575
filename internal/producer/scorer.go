package producer

import (
	"errors"
	"fmt"
	"math"

	"perp_bot/internal/helper"
	"perp_bot/internal/models"
)

var ErrUnknownScorer = errors.New("unknown scorer")

// Scorer превращает срез индикаторов в направление и силу [0,100].
type Scorer interface {
	Name() string
	Score(a models.Analysis) models.ScoredSignal
}

// NewScorer выбирает реализацию по имени из настроек бота.
func NewScorer(cfg models.StrategyConfig) (Scorer, error) {
	switch cfg.Scorer {
	case "", "trend":
		return trendScorer{cfg: cfg}, nil
	case "breakout":
		return breakoutScorer{period: donchianPeriod, minWidthPct: minChannelPct}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScorer, cfg.Scorer)
}

func hold() models.ScoredSignal {
	return models.ScoredSignal{Action: models.ActionHold}
}

func strength(v float64) float64 {
	return helper.RoundTo(helper.Clamp(v, 0, 100), 2)
}

// trendScorer: направление по пересечению EMA, RSI отсекает перегретые входы.
// Сила = 40 * разлёт EMA (1% = максимум) + 40 * импульс RSI + 20 за согласие гистограммы MACD.
type trendScorer struct {
	cfg models.StrategyConfig
}

func (trendScorer) Name() string { return "trend" }

func (s trendScorer) Score(a models.Analysis) models.ScoredSignal {
	if a.EMASlow <= 0 || a.EMAFast == a.EMASlow {
		return hold()
	}

	spread := math.Abs(a.EMAFast-a.EMASlow) / a.EMASlow * 100
	trend := helper.Clamp(spread, 0, 1)
	hist := a.MACD - a.MACDSignal

	if a.EMAFast > a.EMASlow {
		if a.RSI >= s.cfg.RSIOverbought {
			return hold()
		}
		momentum := helper.Clamp((a.RSI-50)/(s.cfg.RSIOverbought-50), 0, 1)
		confirm := 0.0
		if hist > 0 {
			confirm = 1
		}
		return models.ScoredSignal{Action: models.ActionBuy, Strength: strength(40*trend + 40*momentum + 20*confirm)}
	}

	if a.RSI <= s.cfg.RSIOversold {
		return hold()
	}
	momentum := helper.Clamp((50-a.RSI)/(50-s.cfg.RSIOversold), 0, 1)
	confirm := 0.0
	if hist < 0 {
		confirm = 1
	}
	return models.ScoredSignal{Action: models.ActionSell, Strength: strength(40*trend + 40*momentum + 20*confirm)}
}

const (
	donchianPeriod = 20
	minChannelPct  = 0.4
)

// breakoutScorer: пробой канала Дончиана по предыдущим period закрытиям.
// Узкий канал (< minWidthPct% от цены) не торгуем.
type breakoutScorer struct {
	period      int
	minWidthPct float64
}

func (breakoutScorer) Name() string { return "breakout" }

func (s breakoutScorer) Score(a models.Analysis) models.ScoredSignal {
	n := len(a.History)
	if n < s.period+1 || a.Price <= 0 {
		return hold()
	}
	prev := a.History[n-1-s.period : n-1]
	hi, lo := maxSlice(prev), minSlice(prev)

	width := (hi - lo) / a.Price * 100
	if width < s.minWidthPct {
		return hold()
	}

	switch {
	case a.Price > hi:
		excess := (a.Price - hi) / a.Price * 100
		band := 0.0
		if a.BollUpper > 0 && a.Price > a.BollUpper {
			band = 1
		}
		return models.ScoredSignal{Action: models.ActionBuy, Strength: strength(50 + 25*helper.Clamp(excess/(width/2), 0, 1) + 25*band)}
	case a.Price < lo:
		excess := (lo - a.Price) / a.Price * 100
		band := 0.0
		if a.BollLower > 0 && a.Price < a.BollLower {
			band = 1
		}
		return models.ScoredSignal{Action: models.ActionSell, Strength: strength(50 + 25*helper.Clamp(excess/(width/2), 0, 1) + 25*band)}
	}
	return hold()
}

func maxSlice(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minSlice(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
