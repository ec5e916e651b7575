package models

import "time"

// Position: активная сделка по активу, одна на актив.
type Position struct {
	Asset         string    `json:"asset"`
	BotID         string    `json:"botId"`
	TradeID       string    `json:"tradeId"`
	Direction     Side      `json:"direction"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entryPrice"`
	HighWaterMark float64   `json:"highWaterMark"`
	TakeProfit    *float64  `json:"takeProfit,omitempty"`
	Pending       bool      `json:"pending,omitempty"` // вход ещё лежит GTC-ордером
	OpenedAt      time.Time `json:"openedAt"`
}

func (p Position) IsShort() bool { return p.Direction == SideShort }

// Touch сдвигает high-water-mark только в выгодную сторону:
// для лонга вверх, для шорта вниз. true, если сдвинули.
func (p *Position) Touch(price float64) bool {
	if price <= 0 {
		return false
	}
	if p.HighWaterMark <= 0 {
		p.HighWaterMark = price
		return true
	}
	if p.IsShort() {
		if price < p.HighWaterMark {
			p.HighWaterMark = price
			return true
		}
		return false
	}
	if price > p.HighWaterMark {
		p.HighWaterMark = price
		return true
	}
	return false
}

// RealizedPnL = (exit - entry) * qty, со знаком минус для шорта.
func RealizedPnL(dir Side, entry, exit, qty float64) float64 {
	pnl := (exit - entry) * qty
	if dir == SideShort {
		return -pnl
	}
	return pnl
}
