package models

import (
	"math"
	"time"
)

type Book struct {
	Asset   string
	BestBid float64
	BestAsk float64
	At      time.Time
}

func (b Book) Mid() float64 { return (b.BestBid + b.BestAsk) / 2 }

func (b Book) Valid() bool { return b.BestBid > 0 && b.BestAsk > 0 && b.BestAsk >= b.BestBid }

// LivePosition: позиция как её видит биржа. Size > 0 лонг, < 0 шорт.
type LivePosition struct {
	Asset      string
	Size       float64
	EntryPrice float64
	Leverage   int
}

func (p LivePosition) Abs() float64 { return math.Abs(p.Size) }

func (p LivePosition) Direction() Side {
	if p.Size < 0 {
		return SideShort
	}
	return SideLong
}

type AccountState struct {
	Equity       float64
	Withdrawable float64
	Positions    []LivePosition
}

// Position возвращает ненулевую позицию по активу.
func (a AccountState) Position(asset string) (LivePosition, bool) {
	for _, p := range a.Positions {
		if p.Asset == asset && p.Size != 0 {
			return p, true
		}
	}
	return LivePosition{}, false
}

// ClosedPosition: позиция, которую биржа уже закрыла (триггер, ликвидация, руками).
type ClosedPosition struct {
	Asset       string
	ExitPrice   float64
	RealizedPnL float64
	ClosedAt    time.Time
}

type AssetMeta struct {
	Asset         string
	SizeDecimals  int
	PriceDecimals int
	MinSize       float64
	MaxLeverage   int
	Volume24hUSD  float64
}

type TimeInForce string

const (
	TIFIOC TimeInForce = "IOC"
	TIFGTC TimeInForce = "GTC"
)

type Order struct {
	Asset      string
	IsBuy      bool
	Qty        float64
	Price      float64
	TIF        TimeInForce
	ReduceOnly bool
}

// OrderResult: FilledQty > 0 значит исполнен (частично или полностью), Resting значит лежит в стакане.
type OrderResult struct {
	OrderID   string
	FilledQty float64
	AvgPrice  float64
	Resting   bool
}

type TriggerKind string

const (
	TriggerTakeProfit TriggerKind = "tp"
	TriggerStopLoss   TriggerKind = "sl"
)

// TriggerOrder всегда reduce-only.
type TriggerOrder struct {
	Asset        string
	IsBuy        bool
	Qty          float64
	TriggerPrice float64
	Kind         TriggerKind
}

type OpenOrder struct {
	Asset      string
	OrderID    string
	IsBuy      bool
	Qty        float64
	Price      float64
	ReduceOnly bool
}
