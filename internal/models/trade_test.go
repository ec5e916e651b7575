package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrade() TradeRecord {
	return NewTradeRecord("t1", TradeSignal{BotID: "b", Asset: "ETH", Side: SideShort, Strength: 60, Price: 2000}, time.Unix(0, 0))
}

func TestTradeRecord_ForwardOnly(t *testing.T) {
	t.Parallel()

	tr := newTrade()
	require.Equal(t, TradePushed, tr.Status)

	require.NoError(t, tr.Confirm(2001, 0.5, 5))
	at := time.Unix(100, 0)
	require.NoError(t, tr.Close(1990, 5.5, at))

	assert.Equal(t, TradeClosed, tr.Status)
	assert.Equal(t, 1990.0, tr.ExitPrice)
	assert.Equal(t, at, tr.ClosedAt)

	assert.ErrorIs(t, tr.Advance(TradeConfirmed), ErrStatusRegression)
	assert.ErrorIs(t, tr.Fail("late"), ErrStatusRegression)
	assert.Equal(t, TradeClosed, tr.Status)
}

func TestTradeRecord_FailedCanStillClose(t *testing.T) {
	t.Parallel()

	tr := newTrade()
	require.NoError(t, tr.Confirm(2000, 1, 3))
	require.NoError(t, tr.Fail("guard"))
	require.NoError(t, tr.Close(2100, -100, time.Unix(1, 0)))
	assert.Equal(t, TradeClosed, tr.Status)
}

func TestRealizedPnL(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 20.0, RealizedPnL(SideLong, 100, 110, 2), 1e-9)
	assert.InDelta(t, -20.0, RealizedPnL(SideShort, 100, 110, 2), 1e-9)
	assert.InDelta(t, 20.0, RealizedPnL(SideShort, 110, 100, 2), 1e-9)
}

func TestPosition_TouchFavorableOnly(t *testing.T) {
	t.Parallel()

	long := Position{Direction: SideLong, EntryPrice: 100, HighWaterMark: 100}
	assert.True(t, long.Touch(105))
	assert.False(t, long.Touch(101))
	assert.Equal(t, 105.0, long.HighWaterMark)

	short := Position{Direction: SideShort, EntryPrice: 100, HighWaterMark: 100}
	assert.True(t, short.Touch(95))
	assert.False(t, short.Touch(99))
	assert.Equal(t, 95.0, short.HighWaterMark)
}

func TestLadder_LegsAndCompletion(t *testing.T) {
	t.Parallel()

	l := NewLadder(LadderSpec{
		Asset: "SOL", Direction: SideLong, EntryPrice: 10, TotalQty: 4,
		TakeProfitPcts: []float64{1, 2, 3}, RunnerPct: 6, StopLossPct: 2,
	}, time.Unix(0, 0))

	legs := l.Legs()
	require.Len(t, legs, 5)
	assert.Equal(t, "tp1", legs[0].Name)
	assert.Equal(t, "runner", legs[3].Name)
	assert.Equal(t, "sl", legs[4].Name)
	assert.False(t, l.Complete())

	for _, leg := range legs {
		leg.Placed = true
	}
	assert.True(t, l.Complete())
	assert.Equal(t, 0, l.Unplaced())

	assert.True(t, l.Expired(time.Unix(61, 0), time.Minute))
	assert.False(t, l.Expired(time.Unix(59, 0), time.Minute))
}
