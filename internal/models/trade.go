package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrStatusRegression = errors.New("trade status regression")

type TradeStatus string

const (
	TradePushed    TradeStatus = "pushed"
	TradeConfirmed TradeStatus = "confirmed"
	TradeFailed    TradeStatus = "failed"
	TradeClosed    TradeStatus = "closed"
)

// rank задаёт порядок: назад двигаться нельзя.
func (s TradeStatus) rank() int {
	switch s {
	case TradePushed:
		return 0
	case TradeConfirmed:
		return 1
	case TradeFailed:
		return 2
	case TradeClosed:
		return 3
	}
	return -1
}

type TradeRecord struct {
	ID         string      `json:"id"`
	BotID      string      `json:"botId"`
	Asset      string      `json:"asset"`
	Side       Side        `json:"side"`
	Strength   float64     `json:"strength"`
	Status     TradeStatus `json:"status"`
	EntryPrice float64     `json:"entryPrice"`
	Quantity   float64     `json:"quantity"`
	Leverage   int         `json:"leverage"`
	OpenedAt   time.Time   `json:"openedAt"`
	ClosedAt   time.Time   `json:"closedAt,omitempty"`
	ExitPrice  float64     `json:"exitPrice,omitempty"`
	PnL        float64     `json:"pnl"`
	Reason     string      `json:"reason,omitempty"`
}

func NewTradeRecord(id string, s TradeSignal, now time.Time) TradeRecord {
	return TradeRecord{
		ID:         id,
		BotID:      s.BotID,
		Asset:      s.Asset,
		Side:       s.Side,
		Strength:   s.Strength,
		Status:     TradePushed,
		EntryPrice: s.Price,
		OpenedAt:   now,
	}
}

func (t *TradeRecord) Advance(to TradeStatus) error {
	if to.rank() < 0 {
		return fmt.Errorf("unknown trade status %q", to)
	}
	if to.rank() < t.Status.rank() {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrStatusRegression, t.Status, to, t.ID)
	}
	t.Status = to
	return nil
}

func (t *TradeRecord) Confirm(entry, qty float64, leverage int) error {
	if err := t.Advance(TradeConfirmed); err != nil {
		return err
	}
	t.EntryPrice = entry
	t.Quantity = qty
	t.Leverage = leverage
	return nil
}

func (t *TradeRecord) Close(exit, pnl float64, at time.Time) error {
	if err := t.Advance(TradeClosed); err != nil {
		return err
	}
	t.ExitPrice = exit
	t.PnL = pnl
	t.ClosedAt = at
	return nil
}

func (t *TradeRecord) Fail(reason string) error {
	if err := t.Advance(TradeFailed); err != nil {
		return err
	}
	t.Reason = reason
	return nil
}

func (t TradeRecord) Terminal() bool {
	return t.Status == TradeClosed || t.Status == TradeFailed
}
