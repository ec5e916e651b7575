package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"perp_bot/internal/helper"
	"perp_bot/internal/models"
)

type rawOrder struct {
	InstID     string `json:"instId"`
	OrdID      string `json:"ordId"`
	Side       string `json:"side"`
	Px         string `json:"px"`
	Sz         string `json:"sz"`
	AccFillSz  string `json:"accFillSz"`
	AvgPx      string `json:"avgPx"`
	State      string `json:"state"`
	ReduceOnly string `json:"reduceOnly"`
}

// сколько раз перечитываем IOC, пока OKX не переведёт его в финальное состояние
const iocPolls = 3

func side(isBuy bool) string {
	if isBuy {
		return "buy"
	}
	return "sell"
}

// PlaceOrder ставит лимитный IOC или GTC ордер и возвращает фактическое исполнение.
func (c *Client) PlaceOrder(ctx context.Context, o models.Order) (models.OrderResult, error) {
	info, err := c.instrument(ctx, o.Asset)
	if err != nil {
		return models.OrderResult{}, err
	}
	contracts := info.toContracts(o.Qty)
	if contracts < info.minSz {
		return models.OrderResult{}, fmt.Errorf("PlaceOrder %s: %v contracts < minSz %v", o.Asset, contracts, info.minSz)
	}
	if o.Price <= 0 {
		return models.OrderResult{}, fmt.Errorf("PlaceOrder %s: price <= 0", o.Asset)
	}

	ordType := "limit"
	if o.TIF == models.TIFIOC {
		ordType = "ioc"
	}

	body := map[string]any{
		"instId":  o.Asset,
		"tdMode":  "cross",
		"side":    side(o.IsBuy),
		"ordType": ordType,
		"px":      formatPrice(o.Price, helper.DecimalsOf(info.tickSz)),
		"sz":      formatNum(contracts),
	}
	if o.ReduceOnly {
		body["reduceOnly"] = true
	}

	acks, err := call[orderAck](ctx, c, "POST", "/api/v5/trade/order", body, true)
	if err != nil {
		return models.OrderResult{}, err
	}
	ack, err := firstAck("PlaceOrder", acks)
	if err != nil {
		return models.OrderResult{}, err
	}

	var st rawOrder
	for i := 0; i < iocPolls; i++ {
		st, err = c.order(ctx, o.Asset, ack.OrdID)
		if err != nil {
			return models.OrderResult{OrderID: ack.OrdID}, err
		}
		if o.TIF != models.TIFIOC || (st.State != "live" && st.State != "partially_filled") {
			break
		}
		select {
		case <-ctx.Done():
			return models.OrderResult{OrderID: ack.OrdID}, ctx.Err()
		case <-time.After(150 * time.Millisecond):
		}
	}

	res := models.OrderResult{
		OrderID:   ack.OrdID,
		FilledQty: info.toBase(parseF(st.AccFillSz)),
		AvgPrice:  parseF(st.AvgPx),
	}
	if o.TIF == models.TIFGTC && (st.State == "live" || st.State == "partially_filled") {
		res.Resting = true
	}
	return res, nil
}

func (c *Client) order(ctx context.Context, instID, ordID string) (rawOrder, error) {
	path := "/api/v5/trade/order?instId=" + url.QueryEscape(instID) + "&ordId=" + url.QueryEscape(ordID)
	rows, err := call[rawOrder](ctx, c, "GET", path, nil, true)
	if err != nil {
		return rawOrder{}, err
	}
	if len(rows) == 0 {
		return rawOrder{}, fmt.Errorf("order %s/%s not found", instID, ordID)
	}
	return rows[0], nil
}

// OpenOrders: все висящие обычные ордера по SWAP.
func (c *Client) OpenOrders(ctx context.Context) ([]models.OpenOrder, error) {
	rows, err := call[rawOrder](ctx, c, "GET", "/api/v5/trade/orders-pending?instType=SWAP", nil, true)
	if err != nil {
		return nil, err
	}
	out := make([]models.OpenOrder, 0, len(rows))
	for _, r := range rows {
		info, err := c.instrument(ctx, r.InstID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.OpenOrder{
			Asset:      r.InstID,
			OrderID:    r.OrdID,
			IsBuy:      r.Side == "buy",
			Qty:        info.toBase(parseF(r.Sz) - parseF(r.AccFillSz)),
			Price:      parseF(r.Px),
			ReduceOnly: r.ReduceOnly == "true",
		})
	}
	return out, nil
}
