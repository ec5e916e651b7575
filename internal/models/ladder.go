package models

import (
	"fmt"
	"time"
)

type LegKind string

const (
	LegTakeProfit LegKind = "tp"
	LegRunner     LegKind = "runner"
	LegStopLoss   LegKind = "sl"
)

// Leg: одна нога лестницы выхода, unplaced -> placed.
type Leg struct {
	Name      string  `json:"name"`
	Kind      LegKind `json:"kind"`
	Pct       float64 `json:"pct"`
	Price     float64 `json:"price"`
	Qty       float64 `json:"qty"`
	Placed    bool    `json:"placed"`
	OrderID   string  `json:"orderId,omitempty"`
	Attempts  int     `json:"attempts,omitempty"`
	LastError string  `json:"lastError,omitempty"`
}

// PendingExitLadder: запрос на выставление TP/runner/SL по позиции.
type PendingExitLadder struct {
	Asset          string    `json:"asset"`
	Direction      Side      `json:"direction"`
	EntryPrice     float64   `json:"entryPrice"`
	TotalQty       float64   `json:"totalQty"`
	PriceDecimals  int       `json:"priceDecimals"`
	SizeDecimals   int       `json:"sizeDecimals"`
	TakeProfitPcts []float64 `json:"takeProfitPcts"`
	RunnerPct      float64   `json:"runnerPct"`
	StopLossPct    float64   `json:"stopLossPct"`
	CreatedAt      time.Time `json:"createdAt"`

	TakeProfits []Leg `json:"takeProfits"`
	Runner      Leg   `json:"runner"`
	StopLoss    Leg   `json:"stopLoss"`
}

type LadderSpec struct {
	Asset          string
	Direction      Side
	EntryPrice     float64
	TotalQty       float64
	PriceDecimals  int
	SizeDecimals   int
	TakeProfitPcts []float64
	RunnerPct      float64
	StopLossPct    float64
}

// NewLadder строит лестницу со всеми ногами в состоянии unplaced.
func NewLadder(s LadderSpec, now time.Time) PendingExitLadder {
	l := PendingExitLadder{
		Asset:          s.Asset,
		Direction:      s.Direction,
		EntryPrice:     s.EntryPrice,
		TotalQty:       s.TotalQty,
		PriceDecimals:  s.PriceDecimals,
		SizeDecimals:   s.SizeDecimals,
		TakeProfitPcts: append([]float64(nil), s.TakeProfitPcts...),
		RunnerPct:      s.RunnerPct,
		StopLossPct:    s.StopLossPct,
		CreatedAt:      now,
		Runner:         Leg{Name: "runner", Kind: LegRunner, Pct: s.RunnerPct},
		StopLoss:       Leg{Name: "sl", Kind: LegStopLoss, Pct: s.StopLossPct},
	}
	for i, pct := range s.TakeProfitPcts {
		l.TakeProfits = append(l.TakeProfits, Leg{
			Name: fmt.Sprintf("tp%d", i+1),
			Kind: LegTakeProfit,
			Pct:  pct,
		})
	}
	return l
}

// Legs отдаёт все ноги по порядку: tp1..tpN, runner, sl.
func (l *PendingExitLadder) Legs() []*Leg {
	out := make([]*Leg, 0, len(l.TakeProfits)+2)
	for i := range l.TakeProfits {
		out = append(out, &l.TakeProfits[i])
	}
	return append(out, &l.Runner, &l.StopLoss)
}

func (l *PendingExitLadder) Complete() bool {
	for _, leg := range l.Legs() {
		if !leg.Placed {
			return false
		}
	}
	return true
}

func (l *PendingExitLadder) Unplaced() int {
	n := 0
	for _, leg := range l.Legs() {
		if !leg.Placed {
			n++
		}
	}
	return n
}

func (l *PendingExitLadder) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.CreatedAt) > ttl
}
