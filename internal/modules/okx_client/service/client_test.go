package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOKX struct {
	mu     sync.Mutex
	bodies map[string]map[string]any
	signed map[string]bool
}

func (f *fakeOKX) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, data string) {
		_, _ = io.WriteString(w, `{"code":"0","msg":"","data":`+data+`}`)
	}
	record := func(r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.signed[r.URL.Path] = r.Header.Get("OK-ACCESS-SIGN") != ""
		if r.Method == http.MethodPost {
			var m map[string]any
			b, _ := io.ReadAll(r.Body)
			if json.Unmarshal(b, &m) == nil {
				f.bodies[r.URL.Path] = m
			}
		}
	}

	mux.HandleFunc("/api/v5/public/instruments", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		write(w, `[{"instId":"BTC-USDT-SWAP","tickSz":"0.1","lotSz":"0.01","minSz":"0.01","ctVal":"0.01","lever":"100","state":"live"}]`)
	})
	mux.HandleFunc("/api/v5/market/ticker", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		write(w, `[{"instId":"BTC-USDT-SWAP","last":"50000","volCcy24h":"1000"}]`)
	})
	mux.HandleFunc("/api/v5/market/books", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		write(w, `[{"asks":[["50001.5","3","0","1"]],"bids":[["50000.5","2","0","1"]],"ts":"1"}]`)
	})
	mux.HandleFunc("/api/v5/trade/order", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.Method == http.MethodPost {
			write(w, `[{"ordId":"42","sCode":"0","sMsg":""}]`)
			return
		}
		write(w, `[{"instId":"BTC-USDT-SWAP","ordId":"42","accFillSz":"150","avgPx":"50002","state":"filled"}]`)
	})
	mux.HandleFunc("/api/v5/trade/order-algo", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		f.mu.Lock()
		inst := f.bodies[r.URL.Path]["instId"]
		f.mu.Unlock()
		if inst == "ETH-USDT-SWAP" {
			_, _ = io.WriteString(w, `{"code":"1","msg":"","data":[{"algoId":"","sCode":"51279","sMsg":"TP trigger price cannot be lower than the last price"}]}`)
			return
		}
		write(w, `[{"algoId":"a-1","sCode":"0","sMsg":""}]`)
	})
	mux.HandleFunc("/api/v5/account/balance", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		write(w, `[{"totalEq":"1200.5","details":[{"ccy":"USDT","availBal":"800","eq":"1200.5"}]}]`)
	})
	mux.HandleFunc("/api/v5/account/positions", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		write(w, `[{"instId":"BTC-USDT-SWAP","pos":"-200","avgPx":"49000","lever":"5","posSide":"net"},
		           {"instId":"BTC-USDT-SWAP","pos":"0","avgPx":"","lever":"5","posSide":"net"}]`)
	})
	mux.HandleFunc("/api/v5/account/positions-history", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.URL.Query().Get("instId") != "BTC-USDT-SWAP" {
			write(w, `[]`)
			return
		}
		write(w, `[{"instId":"BTC-USDT-SWAP","closeAvgPx":"49000","realizedPnl":"-20.5","uTime":"1700000000000"}]`)
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeOKX) {
	t.Helper()
	f := &fakeOKX{bodies: map[string]map[string]any{}, signed: map[string]bool{}}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := newClient(config.OKXConfig{BaseURL: srv.URL, APIKey: "k", APISecret: "s", Passphrase: "p"}, srv.Client())
	return c, f
}

func TestClient_BookAndMeta(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	ctx := context.Background()

	b, err := c.Book(ctx, "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 50000.5, b.BestBid)
	assert.Equal(t, 50001.5, b.BestAsk)

	m, err := c.AssetMeta(ctx, "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 4, m.SizeDecimals) // 0.01 контракта * 0.01 BTC
	assert.Equal(t, 1, m.PriceDecimals)
	assert.InDelta(t, 0.0001, m.MinSize, 1e-12)
	assert.Equal(t, 100, m.MaxLeverage)
	assert.InDelta(t, 50_000_000, m.Volume24hUSD, 1e-6)
}

func TestClient_PlaceOrderConvertsContracts(t *testing.T) {
	t.Parallel()
	c, f := newTestClient(t)

	res, err := c.PlaceOrder(context.Background(), models.Order{
		Asset: "BTC-USDT-SWAP", IsBuy: true, Qty: 1.5, Price: 50006.04, TIF: models.TIFIOC,
	})
	require.NoError(t, err)
	assert.Equal(t, "42", res.OrderID)
	assert.InDelta(t, 1.5, res.FilledQty, 1e-9)
	assert.Equal(t, 50002.0, res.AvgPrice)
	assert.False(t, res.Resting)

	body := f.bodies["/api/v5/trade/order"]
	assert.Equal(t, "ioc", body["ordType"])
	assert.Equal(t, "buy", body["side"])
	assert.Equal(t, "150", body["sz"])
	assert.Equal(t, "50006.0", body["px"])
	assert.True(t, f.signed["/api/v5/trade/order"])
	assert.False(t, f.signed["/api/v5/market/books"])
}

func TestClient_PlaceTrigger(t *testing.T) {
	t.Parallel()
	c, f := newTestClient(t)

	id, err := c.PlaceTrigger(context.Background(), models.TriggerOrder{
		Asset: "BTC-USDT-SWAP", IsBuy: false, Qty: 0.5, TriggerPrice: 51000, Kind: models.TriggerTakeProfit,
	})
	require.NoError(t, err)
	assert.Equal(t, "a-1", id)

	body := f.bodies["/api/v5/trade/order-algo"]
	assert.Equal(t, "conditional", body["ordType"])
	assert.Equal(t, "sell", body["side"])
	assert.Equal(t, "51000.0", body["tpTriggerPx"])
	assert.Equal(t, true, body["reduceOnly"])
	_, hasSL := body["slTriggerPx"]
	assert.False(t, hasSL)
}

func TestClient_Account(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	st, err := c.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1200.5, st.Equity)
	assert.Equal(t, 800.0, st.Withdrawable)
	require.Len(t, st.Positions, 1)

	p, ok := st.Position("BTC-USDT-SWAP")
	require.True(t, ok)
	assert.InDelta(t, -2.0, p.Size, 1e-9)
	assert.Equal(t, models.SideShort, p.Direction())
	assert.Equal(t, 5, p.Leverage)
}

func TestClient_RejectSurfaced(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	_, err := c.PlaceTrigger(context.Background(), models.TriggerOrder{
		Asset: "ETH-USDT-SWAP", IsBuy: false, Qty: 0.5, TriggerPrice: 1000, Kind: models.TriggerTakeProfit,
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "51279"))
}

func TestClient_ClosedPosition(t *testing.T) {
	t.Parallel()
	c, f := newTestClient(t)
	ctx := context.Background()
	closedAt := time.UnixMilli(1700000000000).UTC()

	cp, ok, err := c.ClosedPosition(ctx, "BTC-USDT-SWAP", closedAt.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 49000.0, cp.ExitPrice)
	assert.Equal(t, -20.5, cp.RealizedPnL)
	assert.Equal(t, closedAt, cp.ClosedAt)
	assert.True(t, f.signed["/api/v5/account/positions-history"])

	// закрытие старше открытия нашей позиции не наше
	_, ok, err = c.ClosedPosition(ctx, "BTC-USDT-SWAP", closedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.ClosedPosition(ctx, "ETH-USDT-SWAP", time.Time{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseLever(t *testing.T) {
	t.Parallel()
	cases := map[string]int{"10": 10, "10.0": 10, "2.5": 3, "": 0, "x": 0, "-3": 0}
	for in, want := range cases {
		assert.Equal(t, want, parseLever("BTC-USDT-SWAP", in), in)
	}
}
