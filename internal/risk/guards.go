package risk

import (
	"errors"
	"fmt"

	"perp_bot/internal/helper"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
)

var ErrDailyLossExceeded = errors.New("daily loss limit reached")

type GuardInput struct {
	Account   models.AccountState
	DailyLoss float64
	Qty       float64
	Price     float64
	Meta      models.AssetMeta
}

type Decision struct {
	CanTrade bool
	Qty      float64
	Adjusted bool
	Reason   string
}

// HaltFunc останавливает процесс. В проде не возвращается.
type HaltFunc func(reason string)

type Guards struct {
	cfg  config.RiskConfig
	halt HaltFunc
}

func NewGuards(cfg config.RiskConfig, halt HaltFunc) *Guards {
	return &Guards{cfg: cfg, halt: halt}
}

// Check: последовательные предторговые проверки до первого отказа.
// Отказ возвращает исходное количество; только порог notional меняет qty.
func (g *Guards) Check(in GuardInput) (Decision, error) {
	return g.check(in, false)
}

// CheckClose: проверки для reduce-only закрытия. Дневной лимит закрытие не
// блокирует и процесс не останавливает: закрытие только снижает риск.
func (g *Guards) CheckClose(in GuardInput) Decision {
	dec, _ := g.check(in, true)
	return dec
}

func (g *Guards) check(in GuardInput, closing bool) (Decision, error) {
	reject := func(format string, args ...any) (Decision, error) {
		return Decision{Qty: in.Qty, Reason: fmt.Sprintf(format, args...)}, nil
	}

	if in.Account.Withdrawable < g.cfg.MinBalance {
		return reject("balance %.2f below floor %.2f", in.Account.Withdrawable, g.cfg.MinBalance)
	}

	if !closing && in.DailyLoss >= g.cfg.MaxDailyLoss {
		reason := fmt.Sprintf("daily loss %.2f reached limit %.2f", in.DailyLoss, g.cfg.MaxDailyLoss)
		if g.halt != nil {
			g.halt(reason)
		}
		return Decision{Qty: in.Qty, Reason: reason}, ErrDailyLossExceeded
	}

	if minVol := g.cfg.MinVolumeFor(in.Meta.Asset); in.Meta.Volume24hUSD < minVol {
		return reject("24h volume %.0f below %.0f", in.Meta.Volume24hUSD, minVol)
	}

	notional := in.Qty * in.Price
	if notional > 0 && notional < g.cfg.MinNotional {
		adj := helper.CeilTo(in.Qty*g.cfg.MinNotional/notional, in.Meta.SizeDecimals)
		return Decision{
			CanTrade: true,
			Qty:      adj,
			Adjusted: true,
			Reason:   fmt.Sprintf("notional %.2f bumped to %.2f", notional, adj*in.Price),
		}, nil
	}
	if notional <= 0 {
		return reject("empty order: qty=%v price=%v", in.Qty, in.Price)
	}

	return Decision{CanTrade: true, Qty: in.Qty}, nil
}
