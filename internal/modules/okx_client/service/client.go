package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"perp_bot/internal/helper"
	"perp_bot/internal/modules/config"

	"github.com/bytedance/sonic"
)

// Client: REST-клиент OKX v5 (SWAP, net mode, cross margin).
// Количества снаружи, в базовой монете, внутри переводятся в контракты через ctVal.
type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
	passph    string
	simulated bool

	now func() time.Time

	instMu sync.RWMutex
	inst   map[string]instrumentInfo
}

func NewClient(cfg *config.Config) *Client {
	return newClient(cfg.OKX, &http.Client{Timeout: 10 * time.Second})
}

func newClient(cfg config.OKXConfig, hc *http.Client) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://www.okx.com"
	}
	return &Client{
		http:      hc,
		baseURL:   base,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		passph:    cfg.Passphrase,
		simulated: cfg.Simulated,
		now:       time.Now,
		inst:      make(map[string]instrumentInfo),
	}
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(ts + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// call выполняет запрос и разворачивает обёртку {code,msg,data}.
func call[T any](ctx context.Context, c *Client, method, requestPath string, body any, private bool) ([]T, error) {
	var payload []byte
	if body != nil {
		b, err := sonic.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s marshal: %w", requestPath, err)
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s new request: %w", requestPath, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if private {
		ts := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
		req.Header.Set("OK-ACCESS-KEY", c.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, method, requestPath, string(payload)))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	}
	if c.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s do: %w", requestPath, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s http %d: %s", requestPath, resp.StatusCode, string(data))
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []T    `json:"data"`
	}
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%s decode: %w; body=%s", requestPath, err, string(data))
	}
	// для order-эндпоинтов code=1 означает reject внутри data, его разбирает вызывающий
	if r.Code != "0" && !(r.Code == "1" && len(r.Data) > 0) {
		return nil, fmt.Errorf("%s okx error: code=%s msg=%s", requestPath, r.Code, r.Msg)
	}
	return r.Data, nil
}

type orderAck struct {
	OrdID  string `json:"ordId"`
	AlgoID string `json:"algoId"`
	SCode  string `json:"sCode"`
	SMsg   string `json:"sMsg"`
}

func firstAck(op string, acks []orderAck) (orderAck, error) {
	if len(acks) == 0 {
		return orderAck{}, fmt.Errorf("%s: empty data", op)
	}
	a := acks[0]
	if a.SCode != "" && a.SCode != "0" {
		return orderAck{}, fmt.Errorf("%s rejected: sCode=%s sMsg=%s", op, a.SCode, a.SMsg)
	}
	return a, nil
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(px float64, decimals int) string {
	return strconv.FormatFloat(helper.RoundTo(px, decimals), 'f', decimals, 64)
}
