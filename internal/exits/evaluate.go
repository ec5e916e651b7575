package exits

import "perp_bot/internal/models"

// Evaluate проверяет условия выхода по текущей цене. Порядок: трейлинг,
// процентный тейк, статическая цель. Возвращает первое сработавшее или nil.
//
// HighWaterMark хранит лучшую цену с момента входа: максимум для лонга, минимум для шорта.
// Проценты в процентах (3 = 3%).
func Evaluate(price float64, pos models.Position, cfg models.StrategyConfig) *models.ExitIntent {
	if price <= 0 || pos.Pending || pos.EntryPrice <= 0 {
		return nil
	}

	hwm := pos.HighWaterMark
	if hwm <= 0 {
		hwm = pos.EntryPrice
	}

	if cfg.TrailingStopPct > 0 {
		retrace := (hwm - price) / hwm
		if pos.IsShort() {
			retrace = (price - hwm) / hwm
		}
		if retrace*100 >= cfg.TrailingStopPct {
			return &models.ExitIntent{Reason: models.ExitTrailingStop, Price: price}
		}
	}

	if cfg.TakeProfitPct > 0 {
		gain := (price - pos.EntryPrice) / pos.EntryPrice
		if pos.IsShort() {
			gain = (pos.EntryPrice - price) / pos.EntryPrice
		}
		if gain*100 >= cfg.TakeProfitPct {
			return &models.ExitIntent{Reason: models.ExitTakeProfit, Price: price}
		}
	}

	if tp := pos.TakeProfit; tp != nil && *tp > 0 {
		if (!pos.IsShort() && price >= *tp) || (pos.IsShort() && price <= *tp) {
			return &models.ExitIntent{Reason: models.ExitTarget, Price: price}
		}
	}

	return nil
}
