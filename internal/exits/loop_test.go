package exits

import (
	"context"
	"sync"
	"testing"
	"time"

	"perp_bot/internal/execution"
	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVenue struct {
	prices  map[string]float64
	account models.AccountState
	orders  []models.OpenOrder
}

func (f *fakeVenue) LastPrice(_ context.Context, asset string) (float64, error) {
	return f.prices[asset], nil
}

func (f *fakeVenue) Account(context.Context) (models.AccountState, error) { return f.account, nil }

func (f *fakeVenue) OpenOrders(context.Context) ([]models.OpenOrder, error) { return f.orders, nil }

type fakeCloser struct {
	mu      sync.Mutex
	closed  map[string]models.ExitIntent
	settled map[string]float64
}

func (c *fakeCloser) Settle(_ context.Context, pos models.Position, reason string, ref float64) execution.ExitResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled == nil {
		c.settled = map[string]float64{}
	}
	c.settled[pos.Asset] = ref
	return execution.ExitResult{Closed: true, AlreadyFlat: true}
}

func (c *fakeCloser) Close(_ context.Context, pos models.Position, intent models.ExitIntent) (execution.ExitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed == nil {
		c.closed = map[string]models.ExitIntent{}
	}
	c.closed[pos.Asset] = intent
	return execution.ExitResult{Closed: true}, nil
}

var strategy = models.StrategyConfig{BotID: "trend-btc", TrailingStopPct: 3, TakeProfitPct: 50}

func newTestLoop(t *testing.T, v *fakeVenue) (*Loop, *store.Lifecycle, *fakeCloser) {
	t.Helper()
	st := store.New(store.NewMemoryKV())
	c := &fakeCloser{}
	l := NewLoop(strategy, v, c, st, config.ExitsConfig{Concurrency: 2}, time.Minute)
	return l, st, c
}

// liveLongs: на бирже открыты лонги по указанным активам.
func liveLongs(assets ...string) models.AccountState {
	var st models.AccountState
	for _, a := range assets {
		st.Positions = append(st.Positions, models.LivePosition{Asset: a, Size: 1})
	}
	return st
}

func savePos(t *testing.T, st *store.Lifecycle, p models.Position) {
	t.Helper()
	require.NoError(t, st.SavePosition(context.Background(), p))
}

func TestLoop_MovesWatermarkAndCloses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v := &fakeVenue{
		prices:  map[string]float64{"BTC": 105, "ETH": 1940, "SOL": 10},
		account: liveLongs("BTC", "ETH"),
	}
	l, st, c := newTestLoop(t, v)

	savePos(t, st, models.Position{Asset: "BTC", BotID: "trend-btc", Direction: models.SideLong, EntryPrice: 100, HighWaterMark: 100, Quantity: 1})
	savePos(t, st, models.Position{Asset: "ETH", BotID: "trend-btc", Direction: models.SideLong, EntryPrice: 1900, HighWaterMark: 2100, Quantity: 1})
	savePos(t, st, models.Position{Asset: "SOL", BotID: "other", Direction: models.SideLong, EntryPrice: 20, HighWaterMark: 20, Quantity: 1})

	require.NoError(t, l.Tick(ctx))

	btc, err := st.GetPosition(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 105.0, btc.HighWaterMark)

	require.Len(t, c.closed, 1)
	assert.Equal(t, models.ExitTrailingStop, c.closed["ETH"].Reason)
	assert.NotContains(t, c.closed, "SOL", "positions of other bots are left alone")
	assert.Empty(t, c.settled)

	status, err := st.GetStatus(ctx, "exits:trend-btc")
	require.NoError(t, err)
	assert.Equal(t, "running", status.State)
}

func TestLoop_PromotesFilledRestingEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v := &fakeVenue{account: models.AccountState{Positions: []models.LivePosition{{Asset: "BTC", Size: -0.02, EntryPrice: 101, Leverage: 4}}}}
	l, st, c := newTestLoop(t, v)

	sig := models.TradeSignal{BotID: "trend-btc", Asset: "BTC", Side: models.SideShort, Strength: 70, Price: 100}
	require.NoError(t, st.SaveTrade(ctx, models.NewTradeRecord("t1", sig, time.Now())))
	savePos(t, st, models.Position{Asset: "BTC", BotID: "trend-btc", TradeID: "t1", Direction: models.SideShort, EntryPrice: 100.5, Quantity: 0.02, Pending: true, OpenedAt: time.Now()})

	require.NoError(t, l.Tick(ctx))

	pos, err := st.GetPosition(ctx, "BTC")
	require.NoError(t, err)
	assert.False(t, pos.Pending)
	assert.Equal(t, 101.0, pos.EntryPrice)
	assert.Equal(t, 0.02, pos.Quantity)
	assert.Equal(t, 101.0, pos.HighWaterMark)

	tr, err := st.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeConfirmed, tr.Status)
	assert.Equal(t, 4, tr.Leverage)
	assert.Empty(t, c.closed)
}

func TestLoop_DropsExpiredRestingEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v := &fakeVenue{}
	l, st, _ := newTestLoop(t, v)

	sig := models.TradeSignal{BotID: "trend-btc", Asset: "BTC", Side: models.SideLong, Strength: 70, Price: 100}
	require.NoError(t, st.SaveTrade(ctx, models.NewTradeRecord("t1", sig, time.Now())))
	savePos(t, st, models.Position{Asset: "BTC", BotID: "trend-btc", TradeID: "t1", Direction: models.SideLong, EntryPrice: 100, Pending: true, OpenedAt: time.Now().Add(-2 * time.Minute)})

	require.NoError(t, l.Tick(ctx))

	has, err := st.HasPosition(ctx, "BTC")
	require.NoError(t, err)
	assert.False(t, has)

	tr, err := st.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeFailed, tr.Status)
}

func TestLoop_KeepsRestingEntryWhileOrderLives(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v := &fakeVenue{orders: []models.OpenOrder{{Asset: "BTC", OrderID: "o1", IsBuy: true, Qty: 0.01, Price: 99}}}
	l, st, _ := newTestLoop(t, v)

	savePos(t, st, models.Position{Asset: "BTC", BotID: "trend-btc", TradeID: "t1", Direction: models.SideLong, EntryPrice: 99, Pending: true, OpenedAt: time.Now().Add(-2 * time.Minute)})

	require.NoError(t, l.Tick(ctx))

	pos, err := st.GetPosition(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, pos.Pending)
}

func TestLoop_WaitsForRestingCloseOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v := &fakeVenue{
		prices:  map[string]float64{"ETH": 1940},
		account: liveLongs("ETH"),
		orders:  []models.OpenOrder{{Asset: "ETH", OrderID: "c1", Qty: 1, Price: 1941, ReduceOnly: true}},
	}
	l, st, c := newTestLoop(t, v)

	savePos(t, st, models.Position{Asset: "ETH", BotID: "trend-btc", Direction: models.SideLong, EntryPrice: 1900, HighWaterMark: 2100, Quantity: 1})

	require.NoError(t, l.Tick(ctx))
	assert.Empty(t, c.closed, "no second close while the first one rests")

	v.orders = nil
	require.NoError(t, l.Tick(ctx))
	assert.Equal(t, models.ExitTrailingStop, c.closed["ETH"].Reason)
}

func TestLoop_SettlesPositionClosedOnVenue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	// стоп лестницы уже закрыл BTC, ETH жив
	v := &fakeVenue{
		prices:  map[string]float64{"BTC": 98, "ETH": 1900},
		account: liveLongs("ETH"),
	}
	l, st, c := newTestLoop(t, v)

	savePos(t, st, models.Position{Asset: "BTC", BotID: "trend-btc", TradeID: "t1", Direction: models.SideLong, EntryPrice: 100, HighWaterMark: 100, Quantity: 1})
	savePos(t, st, models.Position{Asset: "ETH", BotID: "trend-btc", Direction: models.SideLong, EntryPrice: 1900, HighWaterMark: 1900, Quantity: 1})

	require.NoError(t, l.Tick(ctx))

	require.Len(t, c.settled, 1)
	assert.Equal(t, 98.0, c.settled["BTC"])
	assert.Empty(t, c.closed, "no exit order for a position the venue already closed")
}
