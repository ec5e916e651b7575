package service

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"
)

type rawBalance struct {
	TotalEq string `json:"totalEq"`
	Details []struct {
		Ccy      string `json:"ccy"`
		AvailBal string `json:"availBal"`
		AvailEq  string `json:"availEq"`
		Eq       string `json:"eq"`
	} `json:"details"`
}

type rawPosition struct {
	InstID  string `json:"instId"`
	Pos     string `json:"pos"`
	AvgPx   string `json:"avgPx"`
	Lever   string `json:"lever"`
	PosSide string `json:"posSide"`
}

// Account: equity/withdrawable по USDT и открытые SWAP-позиции (size в базовой монете, со знаком).
func (c *Client) Account(ctx context.Context) (models.AccountState, error) {
	bals, err := call[rawBalance](ctx, c, "GET", "/api/v5/account/balance?ccy=USDT", nil, true)
	if err != nil {
		return models.AccountState{}, err
	}
	var st models.AccountState
	if len(bals) > 0 {
		st.Equity = parseF(bals[0].TotalEq)
		for _, d := range bals[0].Details {
			if d.Ccy != "USDT" {
				continue
			}
			st.Withdrawable = parseF(d.AvailBal)
			if st.Withdrawable == 0 {
				st.Withdrawable = parseF(d.AvailEq)
			}
		}
	}

	rows, err := call[rawPosition](ctx, c, "GET", "/api/v5/account/positions?instType=SWAP", nil, true)
	if err != nil {
		return models.AccountState{}, err
	}
	for _, p := range rows {
		contracts := parseF(p.Pos)
		if contracts == 0 {
			continue
		}
		if p.PosSide == "short" && contracts > 0 {
			contracts = -contracts
		}
		info, err := c.instrument(ctx, p.InstID)
		if err != nil {
			return models.AccountState{}, fmt.Errorf("position %s: %w", p.InstID, err)
		}
		lev := parseLever(p.InstID, p.Lever)
		st.Positions = append(st.Positions, models.LivePosition{
			Asset:      p.InstID,
			Size:       info.toBase(contracts),
			EntryPrice: parseF(p.AvgPx),
			Leverage:   lev,
		})
	}
	return st, nil
}

// parseLever: OKX отдаёт плечо строкой, бывает "10", "10.0" или пусто.
func parseLever(instID, s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		logger.Warn("position %s: bad lever %q", instID, s)
		return 0
	}
	return int(math.Round(v))
}

type rawClosedPosition struct {
	InstID      string `json:"instId"`
	CloseAvgPx  string `json:"closeAvgPx"`
	RealizedPnl string `json:"realizedPnl"`
	UTime       string `json:"uTime"`
}

// ClosedPosition: последняя закрытая позиция по активу не раньше since.
// realizedPnl у OKX уже учитывает комиссии и фандинг.
func (c *Client) ClosedPosition(ctx context.Context, asset string, since time.Time) (models.ClosedPosition, bool, error) {
	rows, err := call[rawClosedPosition](ctx, c, "GET",
		"/api/v5/account/positions-history?instType=SWAP&limit=1&instId="+url.QueryEscape(asset), nil, true)
	if err != nil {
		return models.ClosedPosition{}, false, err
	}
	for _, r := range rows {
		ms, err := strconv.ParseInt(r.UTime, 10, 64)
		if err != nil {
			continue
		}
		at := time.UnixMilli(ms).UTC()
		if at.Before(since) {
			continue
		}
		return models.ClosedPosition{
			Asset:       r.InstID,
			ExitPrice:   parseF(r.CloseAvgPx),
			RealizedPnL: parseF(r.RealizedPnl),
			ClosedAt:    at,
		}, true, nil
	}
	return models.ClosedPosition{}, false, nil
}

func (c *Client) SetLeverage(ctx context.Context, asset string, leverage int) error {
	if leverage <= 0 {
		return fmt.Errorf("SetLeverage %s: leverage <= 0", asset)
	}
	body := map[string]string{
		"instId":  asset,
		"lever":   strconv.Itoa(leverage),
		"mgnMode": "cross",
	}
	_, err := call[map[string]string](ctx, c, "POST", "/api/v5/account/set-leverage", body, true)
	return err
}
