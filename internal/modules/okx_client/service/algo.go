package service

import (
	"context"
	"fmt"
	"net/url"

	"perp_bot/internal/helper"
	"perp_bot/internal/models"
)

// PlaceTrigger ставит reduce-only conditional ордер (TP или SL) с исполнением по рынку.
func (c *Client) PlaceTrigger(ctx context.Context, o models.TriggerOrder) (string, error) {
	if o.TriggerPrice <= 0 {
		return "", fmt.Errorf("PlaceTrigger %s: triggerPx <= 0", o.Asset)
	}
	info, err := c.instrument(ctx, o.Asset)
	if err != nil {
		return "", err
	}
	contracts := info.toContracts(o.Qty)
	if contracts < info.minSz {
		return "", fmt.Errorf("PlaceTrigger %s: %v contracts < minSz %v", o.Asset, contracts, info.minSz)
	}

	body := map[string]any{
		"instId":     o.Asset,
		"tdMode":     "cross",
		"side":       side(o.IsBuy),
		"ordType":    "conditional",
		"sz":         formatNum(contracts),
		"reduceOnly": true,
	}

	px := formatPrice(o.TriggerPrice, helper.DecimalsOf(info.tickSz))
	switch o.Kind {
	case models.TriggerTakeProfit:
		body["tpTriggerPx"] = px
		body["tpOrdPx"] = "-1"
		body["tpTriggerPxType"] = "last"
	case models.TriggerStopLoss:
		body["slTriggerPx"] = px
		body["slOrdPx"] = "-1"
		body["slTriggerPxType"] = "last"
	default:
		return "", fmt.Errorf("PlaceTrigger: unsupported kind %q", o.Kind)
	}

	acks, err := call[orderAck](ctx, c, "POST", "/api/v5/trade/order-algo", body, true)
	if err != nil {
		return "", err
	}
	ack, err := firstAck("PlaceTrigger", acks)
	if err != nil {
		return "", err
	}
	if ack.AlgoID == "" {
		return "", fmt.Errorf("PlaceTrigger %s: empty algoId", o.Asset)
	}
	return ack.AlgoID, nil
}

type rawAlgo struct {
	InstID string `json:"instId"`
	AlgoID string `json:"algoId"`
}

// CancelTriggers снимает все висящие conditional-ордера по активу. Возвращает число снятых.
func (c *Client) CancelTriggers(ctx context.Context, asset string) (int, error) {
	rows, err := call[rawAlgo](ctx, c, "GET",
		"/api/v5/trade/orders-algo-pending?ordType=conditional&instType=SWAP&instId="+url.QueryEscape(asset), nil, true)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	body := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		body = append(body, map[string]string{"instId": r.InstID, "algoId": r.AlgoID})
	}
	if _, err := call[orderAck](ctx, c, "POST", "/api/v5/trade/cancel-algos", body, true); err != nil {
		return 0, err
	}
	return len(rows), nil
}
