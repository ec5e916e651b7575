package models

const (
	ExitTrailingStop = "trailing-stop"
	ExitTakeProfit   = "take-profit"
	ExitTarget       = "target"
	// биржа закрыла сама: нога лестницы, ликвидация, руками
	ExitVenueClosed = "venue-closed"
)

// ExitIntent: решение закрыть позицию целиком. Price, цена, на которой сработало условие.
type ExitIntent struct {
	Reason string
	Price  float64
}
