package producer

import (
	"math"

	"perp_bot/internal/models"
)

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	bollPeriod = 20
	bollWidth  = 2.0
)

type emaState struct {
	period int
	alpha  float64
	value  float64
	warmup int
}

func newEMA(period int) emaState {
	if period <= 1 {
		period = 1
	}
	return emaState{
		period: period,
		alpha:  2.0 / (float64(period) + 1),
	}
}

func (e *emaState) Update(price float64) {
	if e.warmup == 0 {
		e.value = price
		e.warmup = 1
		return
	}
	e.value = e.alpha*price + (1-e.alpha)*e.value
	if e.warmup < e.period {
		e.warmup++
	}
}

func (e *emaState) Ready() bool    { return e.warmup >= e.period }
func (e *emaState) Value() float64 { return e.value }

func ema(closes []float64, period int) (float64, bool) {
	e := newEMA(period)
	for _, c := range closes {
		e.Update(c)
	}
	return e.Value(), e.Ready()
}

// rsi по Уайлдеру: первое среднее простое, дальше сглаживание 1/period.
func rsi(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain, avgLoss := gain/float64(period), loss/float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

func macd(closes []float64) (line, signal float64, ok bool) {
	if len(closes) < macdSlow+macdSignal {
		return 0, 0, false
	}
	fast, slow, sig := newEMA(macdFast), newEMA(macdSlow), newEMA(macdSignal)
	for _, c := range closes {
		fast.Update(c)
		slow.Update(c)
		if slow.Ready() {
			sig.Update(fast.Value() - slow.Value())
		}
	}
	return fast.Value() - slow.Value(), sig.Value(), sig.Ready()
}

func bollinger(closes []float64, period int, width float64) (upper, mid, lower float64, ok bool) {
	if len(closes) < period {
		return 0, 0, 0, false
	}
	window := closes[len(closes)-period:]

	var sum float64
	for _, c := range window {
		sum += c
	}
	mid = sum / float64(period)

	var sq float64
	for _, c := range window {
		sq += (c - mid) * (c - mid)
	}
	sd := math.Sqrt(sq / float64(period))
	return mid + width*sd, mid, mid - width*sd, true
}

// Analyze считает срез индикаторов. false, если истории меньше, чем нужно для EMA/RSI.
// MACD и полосы Боллинджера остаются нулевыми, пока не прогреются.
func Analyze(asset string, closes []float64, cfg models.StrategyConfig) (models.Analysis, bool) {
	if len(closes) == 0 {
		return models.Analysis{Asset: asset}, false
	}
	a := models.Analysis{
		Asset:   asset,
		Price:   closes[len(closes)-1],
		History: closes,
	}

	fast, okFast := ema(closes, cfg.EMAFast)
	slow, okSlow := ema(closes, cfg.EMASlow)
	r, okRSI := rsi(closes, cfg.RSIPeriod)
	if !okFast || !okSlow || !okRSI {
		return a, false
	}
	a.EMAFast, a.EMASlow, a.RSI = fast, slow, r

	if line, sig, ok := macd(closes); ok {
		a.MACD, a.MACDSignal = line, sig
	}
	if up, mid, low, ok := bollinger(closes, bollPeriod, bollWidth); ok {
		a.BollUpper, a.BollMid, a.BollLower = up, mid, low
	}
	return a, true
}
