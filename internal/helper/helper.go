package helper

import (
	"math"

	"github.com/shopspring/decimal"
)

// запас знаков, чтобы 1.0000000000000002 не улетал вверх при Ceil
const guardPlaces = 8

// DecimalsOf: шаг 0.001 -> 3, 1 -> 0, 10 -> 0.
func DecimalsOf(step float64) int {
	if step <= 0 {
		return 0
	}
	for d := 0; d <= 12; d++ {
		scaled := step * math.Pow10(d)
		if math.Abs(scaled-math.Round(scaled)) < 1e-9*math.Max(1, scaled) {
			return d
		}
	}
	return 12
}

func cleaned(v float64, decimals int) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(int32(decimals + guardPlaces))
}

// RoundTo: обычное округление до decimals знаков.
func RoundTo(v float64, decimals int) float64 {
	f, _ := decimal.NewFromFloat(v).Round(int32(decimals)).Float64()
	return f
}

func FloorTo(v float64, decimals int) float64 {
	f, _ := cleaned(v, decimals).RoundFloor(int32(decimals)).Float64()
	return f
}

func CeilTo(v float64, decimals int) float64 {
	f, _ := cleaned(v, decimals).RoundCeil(int32(decimals)).Float64()
	return f
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
