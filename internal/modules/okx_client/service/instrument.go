package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"perp_bot/internal/helper"
	"perp_bot/internal/models"
)

type rawInstrument struct {
	InstID string `json:"instId"`
	TickSz string `json:"tickSz"`
	LotSz  string `json:"lotSz"`
	MinSz  string `json:"minSz"`
	CtVal  string `json:"ctVal"`
	CtMult string `json:"ctMult"`
	Lever  string `json:"lever"`
	State  string `json:"state"`
}

type instrumentInfo struct {
	tickSz  float64
	lotSz   float64
	minSz   float64
	ctVal   float64 // ctVal * ctMult, базовая монета на контракт
	maxLev  int
	lotDecs int
}

func (c *Client) instrument(ctx context.Context, instID string) (instrumentInfo, error) {
	c.instMu.RLock()
	info, ok := c.inst[instID]
	c.instMu.RUnlock()
	if ok {
		return info, nil
	}

	rows, err := call[rawInstrument](ctx, c, "GET",
		"/api/v5/public/instruments?instType=SWAP&instId="+url.QueryEscape(instID), nil, false)
	if err != nil {
		return instrumentInfo{}, err
	}
	if len(rows) == 0 {
		return instrumentInfo{}, fmt.Errorf("instrument %s not found", instID)
	}
	inst := rows[0]
	if inst.State != "" && inst.State != "live" {
		return instrumentInfo{}, fmt.Errorf("instrument %s not live: state=%s", instID, inst.State)
	}

	parsePos := func(name, s string) (float64, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("%s %s parse: %v (%q)", instID, name, err, s)
		}
		return v, nil
	}

	if info.lotSz, err = parsePos("lotSz", inst.LotSz); err != nil {
		return instrumentInfo{}, err
	}
	if info.minSz, err = parsePos("minSz", inst.MinSz); err != nil {
		return instrumentInfo{}, err
	}
	if info.tickSz, err = parsePos("tickSz", inst.TickSz); err != nil {
		return instrumentInfo{}, err
	}
	if info.ctVal, err = parsePos("ctVal", inst.CtVal); err != nil {
		return instrumentInfo{}, err
	}
	if m := parseF(inst.CtMult); m > 0 {
		info.ctVal *= m
	}
	info.maxLev = int(parseF(inst.Lever))
	if info.maxLev <= 0 {
		info.maxLev = 1
	}
	info.lotDecs = helper.DecimalsOf(info.lotSz)

	c.instMu.Lock()
	c.inst[instID] = info
	c.instMu.Unlock()
	return info, nil
}

// toContracts округляет вниз до lotSz.
func (i instrumentInfo) toContracts(qty float64) float64 {
	return helper.FloorTo(qty/i.ctVal, i.lotDecs)
}

func (i instrumentInfo) toBase(contracts float64) float64 {
	return contracts * i.ctVal
}

type rawTicker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	VolCcy24h string `json:"volCcy24h"`
}

func (c *Client) ticker(ctx context.Context, instID string) (rawTicker, error) {
	rows, err := call[rawTicker](ctx, c, "GET", "/api/v5/market/ticker?instId="+url.QueryEscape(instID), nil, false)
	if err != nil {
		return rawTicker{}, err
	}
	if len(rows) == 0 {
		return rawTicker{}, fmt.Errorf("ticker %s: empty", instID)
	}
	return rows[0], nil
}

// AssetMeta: точности, минимальный размер, плечо и 24h-оборот в USD.
func (c *Client) AssetMeta(ctx context.Context, asset string) (models.AssetMeta, error) {
	info, err := c.instrument(ctx, asset)
	if err != nil {
		return models.AssetMeta{}, err
	}
	t, err := c.ticker(ctx, asset)
	if err != nil {
		return models.AssetMeta{}, fmt.Errorf("ticker: %w", err)
	}

	return models.AssetMeta{
		Asset:         asset,
		SizeDecimals:  helper.DecimalsOf(info.lotSz * info.ctVal),
		PriceDecimals: helper.DecimalsOf(info.tickSz),
		MinSize:       info.toBase(info.minSz),
		MaxLeverage:   info.maxLev,
		Volume24hUSD:  parseF(t.VolCcy24h) * parseF(t.Last),
	}, nil
}

// LastPrice: последняя сделка по инструменту.
func (c *Client) LastPrice(ctx context.Context, asset string) (float64, error) {
	t, err := c.ticker(ctx, asset)
	if err != nil {
		return 0, err
	}
	px := parseF(t.Last)
	if px <= 0 {
		return 0, fmt.Errorf("ticker %s: last <= 0", asset)
	}
	return px, nil
}
