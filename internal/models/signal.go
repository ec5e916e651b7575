package models

import (
	"errors"
	"fmt"
	"math"

	"github.com/bytedance/sonic"
)

var ErrMalformedEntry = errors.New("malformed queue entry")

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

func (s Side) Valid() bool { return s == SideLong || s == SideShort }

// EntryIsBuy: сторона открывающего ордера.
func (s Side) EntryIsBuy() bool { return s == SideLong }

// TradeSignal: направленный сигнал от стратегии. Неизменяемый.
type TradeSignal struct {
	BotID     string  `json:"botId"`
	Asset     string  `json:"asset"`
	Side      Side    `json:"side"`
	Strength  float64 `json:"strength"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// ProducerDoneMarker: продюсер закончил свой цикл.
type ProducerDoneMarker struct {
	BotID     string `json:"botId"`
	Done      bool   `json:"done"`
	Timestamp int64  `json:"timestamp"`
}

type EntryKind string

const (
	KindSignal EntryKind = "signal"
	KindDone   EntryKind = "done"
)

// QueueEntry: элемент общей очереди trade_signals, ровно один из Signal/Done не nil.
type QueueEntry struct {
	Kind   EntryKind
	Signal *TradeSignal
	Done   *ProducerDoneMarker
}

type wireEntry struct {
	Kind      EntryKind `json:"kind"`
	BotID     string    `json:"botId"`
	Asset     string    `json:"asset,omitempty"`
	Side      Side      `json:"side,omitempty"`
	Strength  *float64  `json:"strength,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Done      bool      `json:"done,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

func EncodeSignal(s TradeSignal) ([]byte, error) {
	strength := s.Strength
	return sonic.Marshal(wireEntry{
		Kind:      KindSignal,
		BotID:     s.BotID,
		Asset:     s.Asset,
		Side:      s.Side,
		Strength:  &strength,
		Price:     s.Price,
		Timestamp: s.Timestamp,
	})
}

func EncodeDone(d ProducerDoneMarker) ([]byte, error) {
	return sonic.Marshal(wireEntry{
		Kind:      KindDone,
		BotID:     d.BotID,
		Done:      true,
		Timestamp: d.Timestamp,
	})
}

// DecodeQueueEntry разбирает и валидирует элемент очереди.
// Любая невалидная форма -> ErrMalformedEntry.
func DecodeQueueEntry(raw []byte) (QueueEntry, error) {
	var w wireEntry
	if err := sonic.Unmarshal(raw, &w); err != nil {
		return QueueEntry{}, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if w.BotID == "" {
		return QueueEntry{}, fmt.Errorf("%w: empty botId", ErrMalformedEntry)
	}

	switch w.Kind {
	case KindSignal:
		if w.Asset == "" || !w.Side.Valid() || w.Strength == nil {
			return QueueEntry{}, fmt.Errorf("%w: incomplete signal from %s", ErrMalformedEntry, w.BotID)
		}
		st := *w.Strength
		if math.IsNaN(st) || st < 0 || st > 100 {
			return QueueEntry{}, fmt.Errorf("%w: strength %v out of range", ErrMalformedEntry, st)
		}
		if !(w.Price > 0) {
			return QueueEntry{}, fmt.Errorf("%w: price %v", ErrMalformedEntry, w.Price)
		}
		return QueueEntry{Kind: KindSignal, Signal: &TradeSignal{
			BotID:     w.BotID,
			Asset:     w.Asset,
			Side:      w.Side,
			Strength:  st,
			Price:     w.Price,
			Timestamp: w.Timestamp,
		}}, nil

	case KindDone:
		if !w.Done {
			return QueueEntry{}, fmt.Errorf("%w: done marker without flag", ErrMalformedEntry)
		}
		return QueueEntry{Kind: KindDone, Done: &ProducerDoneMarker{
			BotID:     w.BotID,
			Done:      true,
			Timestamp: w.Timestamp,
		}}, nil
	}

	return QueueEntry{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedEntry, w.Kind)
}
