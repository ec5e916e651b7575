package execution

import (
	"context"
	"testing"
	"time"

	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/risk"
	"perp_bot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exitLimits = config.RiskConfig{
	MinBalance:   50,
	MaxDailyLoss: 100,
	MinNotional:  10,
	MinVolume24h: 1_000_000,
}

type exitFixture struct {
	st    *store.Lifecycle
	venue *fakeVenue
	j     *fakeJournal
	ex    *ExitExecutor
	pos   models.Position
}

func newExitFixture(t *testing.T) *exitFixture {
	t.Helper()
	ctx := context.Background()
	st := store.New(store.NewMemoryKV())

	sig := seedTrade(t, st, "t1", models.SideLong)
	_, err := st.UpdateTrade(ctx, "t1", func(tr *models.TradeRecord) error { return tr.Confirm(100, 0.01, 5) })
	require.NoError(t, err)

	pos := models.Position{
		Asset: "BTC", BotID: sig.BotID, TradeID: "t1", Direction: models.SideLong,
		Quantity: 0.01, EntryPrice: 100, HighWaterMark: 110, OpenedAt: time.Now(),
	}
	require.NoError(t, st.SavePosition(ctx, pos))
	require.NoError(t, st.SaveLadder(ctx, models.NewLadder(models.LadderSpec{Asset: "BTC", Direction: models.SideLong, EntryPrice: 100, TotalQty: 0.01}, time.Now())))

	v := &fakeVenue{
		book: models.Book{BestBid: 105.99, BestAsk: 106},
		account: models.AccountState{
			Equity:       1000,
			Withdrawable: 800,
			Positions:    []models.LivePosition{{Asset: "BTC", Size: 0.01, EntryPrice: 100, Leverage: 5}},
		},
		meta: models.AssetMeta{SizeDecimals: 4, PriceDecimals: 2, MinSize: 0.0001, MaxLeverage: 20, Volume24hUSD: 2_000_000},
	}
	j := &fakeJournal{}
	ex := NewExitExecutor(v, NewPlacer(v, execCfg), risk.NewGuards(exitLimits, nil), st, j, 15*time.Minute)

	return &exitFixture{st: st, venue: v, j: j, ex: ex, pos: pos}
}

var trailing = models.ExitIntent{Reason: models.ExitTrailingStop, Price: 106}

func TestExit_FilledClosesEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newExitFixture(t)
	f.venue.place = fillsAt(0, 105.5)

	res, err := f.ex.Close(ctx, f.pos, trailing)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.InDelta(t, 0.055, res.PnL, 1e-9)

	require.Len(t, f.venue.orders, 1)
	o := f.venue.orders[0]
	assert.True(t, o.ReduceOnly)
	assert.False(t, o.IsBuy)
	assert.Equal(t, 0.01, o.Qty)

	tr, err := f.st.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, tr.Status)
	assert.Equal(t, 105.5, tr.ExitPrice)
	assert.False(t, tr.ClosedAt.IsZero())
	assert.Equal(t, models.ExitTrailingStop, tr.Reason)

	loss, err := f.st.DailyLoss(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -0.055, loss, 1e-9)

	has, err := f.st.HasPosition(ctx, "BTC")
	require.NoError(t, err)
	assert.False(t, has)
	_, err = f.st.GetLadder(ctx, "BTC")
	assert.ErrorIs(t, err, store.ErrNotFound)

	cd, err := f.st.InCooldown(ctx, "BTC", time.Now())
	require.NoError(t, err)
	assert.True(t, cd)
	assert.Equal(t, []string{"BTC"}, f.venue.cancels)
	assert.Len(t, f.j.records, 1)
}

func TestExit_AlreadyFlatWithoutHistoryBooksNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newExitFixture(t)
	f.venue.account.Positions = nil

	res, err := f.ex.Close(ctx, f.pos, models.ExitIntent{Reason: models.ExitTakeProfit, Price: 108})
	require.NoError(t, err)
	assert.True(t, res.AlreadyFlat)
	assert.Zero(t, res.PnL)
	assert.Empty(t, f.venue.orders)

	tr, err := f.st.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, tr.Status)
	assert.Equal(t, 108.0, tr.ExitPrice)
	assert.Zero(t, tr.PnL)
	assert.Equal(t, models.ExitVenueClosed, tr.Reason)

	loss, err := f.st.DailyLoss(ctx)
	require.NoError(t, err)
	assert.Zero(t, loss, "intent price is not a fill")

	has, err := f.st.HasPosition(ctx, "BTC")
	require.NoError(t, err)
	assert.False(t, has)
	cd, err := f.st.InCooldown(ctx, "BTC", time.Now())
	require.NoError(t, err)
	assert.True(t, cd)
}

func TestExit_AlreadyFlatBooksVenueRealizedPnL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newExitFixture(t)
	f.venue.account.Positions = nil
	// стоп лестницы закрыл лонг по 98
	f.venue.closed = &models.ClosedPosition{Asset: "BTC", ExitPrice: 98, RealizedPnL: -0.021, ClosedAt: time.Now()}

	res, err := f.ex.Close(ctx, f.pos, models.ExitIntent{Reason: models.ExitTakeProfit, Price: 108})
	require.NoError(t, err)
	assert.True(t, res.AlreadyFlat)
	assert.InDelta(t, -0.021, res.PnL, 1e-12)

	tr, err := f.st.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, tr.Status)
	assert.Equal(t, 98.0, tr.ExitPrice)
	assert.InDelta(t, -0.021, tr.PnL, 1e-12)

	loss, err := f.st.DailyLoss(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.021, loss, 1e-12)
}

func TestExit_SettleCountsPartialCloseOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newExitFixture(t)
	f.venue.place = func(n int, o models.Order) (models.OrderResult, error) {
		return models.OrderResult{OrderID: "p", FilledQty: 0.004, AvgPrice: 105}, nil
	}
	_, err := f.ex.Close(ctx, f.pos, trailing)
	require.NoError(t, err)

	pos, err := f.st.GetPosition(ctx, "BTC")
	require.NoError(t, err)
	f.venue.account.Positions = nil
	f.venue.closed = &models.ClosedPosition{Asset: "BTC", ExitPrice: 99, RealizedPnL: 0.014, ClosedAt: time.Now()}

	res := f.ex.Settle(ctx, pos, models.ExitVenueClosed, 99)
	assert.InDelta(t, -0.006, res.PnL, 1e-12)

	tr, err := f.st.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.InDelta(t, 0.014, tr.PnL, 1e-12)

	loss, err := f.st.DailyLoss(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -0.014, loss, 1e-12)
}

func TestExit_ClosesAtDailyLossLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newExitFixture(t)
	var halted []string
	f.ex.guards = risk.NewGuards(exitLimits, func(reason string) { halted = append(halted, reason) })
	_, err := f.st.ApplyRealizedPnL(ctx, -100)
	require.NoError(t, err)
	f.venue.place = fillsAt(0, 105.5)

	res, err := f.ex.Close(ctx, f.pos, trailing)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Empty(t, halted)
	require.Len(t, f.venue.orders, 1)
	assert.True(t, f.venue.orders[0].ReduceOnly)

	tr, err := f.st.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeClosed, tr.Status)
}

func TestExit_RestingDefers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newExitFixture(t)
	f.venue.place = restsOnGTC(false)

	res, err := f.ex.Close(ctx, f.pos, trailing)
	require.NoError(t, err)
	assert.True(t, res.Deferred)
	assert.False(t, res.Closed)

	tr, err := f.st.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeConfirmed, tr.Status)

	has, err := f.st.HasPosition(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestExit_GuardBlockFailsTrade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newExitFixture(t)
	f.venue.account.Withdrawable = 10
	f.venue.place = fillsAt(0, 105.5)

	_, err := f.ex.Close(ctx, f.pos, trailing)
	require.Error(t, err)
	assert.Empty(t, f.venue.orders)

	tr, err := f.st.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeFailed, tr.Status)

	has, err := f.st.HasPosition(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, has, "position stays for a later attempt")
}

func TestExit_PartialFillShrinksPosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newExitFixture(t)
	f.venue.place = func(n int, o models.Order) (models.OrderResult, error) {
		return models.OrderResult{OrderID: "p", FilledQty: 0.004, AvgPrice: 105}, nil
	}

	res, err := f.ex.Close(ctx, f.pos, trailing)
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	pos, err := f.st.GetPosition(ctx, "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 0.006, pos.Quantity, 1e-12)

	tr, err := f.st.GetTrade(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TradeConfirmed, tr.Status)
	assert.InDelta(t, 0.02, tr.PnL, 1e-9)
}
