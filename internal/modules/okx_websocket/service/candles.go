package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"perp_bot/internal/models"

	"github.com/bytedance/sonic"
)

// GetCandles: закрытые свечи по REST, от старых к новым.
func (f *Feed) GetCandles(ctx context.Context, instID, timeframe string, limit int) ([]models.CandleTick, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 300 {
		limit = 300
	}
	bar, err := okxBar(timeframe)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/api/v5/market/candles?instId=%s&bar=%s&limit=%d",
		f.baseURL, url.QueryEscape(instID), url.QueryEscape(bar), limit,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", instID, err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("candles %s http %d: %s", instID, resp.StatusCode, string(b))
	}

	var r struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	if err := sonic.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("candles %s decode: %w", instID, err)
	}
	if r.Code != "0" {
		return nil, fmt.Errorf("okx candles error: code=%s msg=%s", r.Code, r.Msg)
	}

	// OKX отдаёт newest-first, незакрытая свеча идёт первой
	out := make([]models.CandleTick, 0, len(r.Data))
	for i := len(r.Data) - 1; i >= 0; i-- {
		row := r.Data[i]
		if len(row) >= 9 && !confirmed(row) {
			continue
		}
		c, ok := parseRow(instID, bar, row)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
