package risk

import (
	"math"

	"perp_bot/internal/helper"
	"perp_bot/internal/models"
)

type Sizing struct {
	CapitalRiskUSD float64
	CapitalRiskPct float64
	Leverage       int
}

// Size переводит силу сигнала в долю капитала под риском и плечо.
//
//	riskPct  = minPct + (max(0, s-minScore) / max(1, golden-minScore)) * (maxPct-minPct), в [minPct, maxPct]
//	leverage = clamp(minLev, maxLev, s/golden*maxLev), затем не выше плеча биржи
//
// Ниже minScore значения прижимаются к минимуму, выше golden, к максимуму.
// Плечо округляется вниз до целого и не бывает меньше 1.
func Size(strength, equity float64, p models.SizingPolicy, assetMaxLeverage int) Sizing {
	s := helper.Clamp(strength, 0, 100)

	rng := math.Max(1, p.GoldenScore-p.MinScore)
	effective := math.Max(0, s-p.MinScore)
	pct := p.MinPct + (effective/rng)*(p.MaxPct-p.MinPct)
	pct = helper.Clamp(pct, p.MinPct, p.MaxPct)

	minLev, maxLev := float64(p.MinLeverage), float64(p.MaxLeverage)
	if maxLev < minLev {
		maxLev = minLev
	}
	levStrength := math.Max(s, p.MinScore)
	raw := maxLev
	if p.GoldenScore > 0 {
		raw = levStrength / p.GoldenScore * maxLev
	}
	lev := int(math.Floor(helper.Clamp(raw, minLev, maxLev)))
	if assetMaxLeverage > 0 && lev > assetMaxLeverage {
		lev = assetMaxLeverage
	}
	if lev < 1 {
		lev = 1
	}

	return Sizing{
		CapitalRiskUSD: pct * math.Max(0, equity),
		CapitalRiskPct: pct,
		Leverage:       lev,
	}
}

// Quantity считает размер позиции в базовой монете: риск * плечо / цена, вниз до точности актива.
func Quantity(sz Sizing, price float64, sizeDecimals int) float64 {
	if price <= 0 {
		return 0
	}
	return helper.FloorTo(sz.CapitalRiskUSD*float64(sz.Leverage)/price, sizeDecimals)
}
