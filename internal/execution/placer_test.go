package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"perp_bot/internal/models"
	"perp_bot/internal/modules/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var execCfg = config.ExecutionConfig{
	StepTimeout:   time.Second,
	IOCSlippage:   0.0001,
	RetrySlippage: 0.0002,
}

func buyReq() Request {
	return Request{Asset: "BTC", IsBuy: true, Qty: 0.01, SizeDecimals: 4, PriceDecimals: 2, Purpose: PurposeEntry}
}

func newBookVenue() *fakeVenue {
	return &fakeVenue{book: models.Book{BestBid: 99.99, BestAsk: 100}}
}

func TestPlacer_FirstIOCFills(t *testing.T) {
	t.Parallel()

	v := newBookVenue()
	v.place = fillsAt(0, 100.012)

	fill, err := NewPlacer(v, execCfg).Place(context.Background(), buyReq())

	require.NoError(t, err)
	assert.Equal(t, OutcomeFilled, fill.Outcome)
	assert.Equal(t, 1, fill.Step)
	assert.Equal(t, 0.01, fill.Qty)
	assert.Equal(t, 100.01, fill.Price, "avg price rounded to price decimals")

	require.Len(t, v.orders, 1)
	assert.Equal(t, models.TIFIOC, v.orders[0].TIF)
	assert.Equal(t, 100.01, v.orders[0].Price)
}

func TestPlacer_RetryIsMoreAggressive(t *testing.T) {
	t.Parallel()

	v := newBookVenue()
	v.place = fillsAt(1, 0)

	fill, err := NewPlacer(v, execCfg).Place(context.Background(), buyReq())

	require.NoError(t, err)
	assert.Equal(t, OutcomeFilled, fill.Outcome)
	assert.Equal(t, 2, fill.Step)
	require.Len(t, v.orders, 2)
	assert.Equal(t, 100.01, v.orders[0].Price)
	assert.Equal(t, 100.02, v.orders[1].Price)
	assert.Equal(t, 100.02, fill.Price, "quoted price used when venue reports no average")
}

func TestPlacer_SellQuotesBelowBid(t *testing.T) {
	t.Parallel()

	v := newBookVenue()
	v.place = fillsAt(0, 0)
	req := buyReq()
	req.IsBuy = false

	_, err := NewPlacer(v, execCfg).Place(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, v.orders, 1)
	assert.Equal(t, 99.98, v.orders[0].Price)
	assert.False(t, v.orders[0].IsBuy)
}

func TestPlacer_FallsBackToRestingGTC(t *testing.T) {
	t.Parallel()

	v := newBookVenue()
	v.place = restsOnGTC(false)

	fill, err := NewPlacer(v, execCfg).Place(context.Background(), buyReq())

	require.NoError(t, err)
	assert.Equal(t, OutcomeResting, fill.Outcome)
	assert.Equal(t, 3, fill.Step)
	assert.Equal(t, "gtc-1", fill.OrderID)
	require.Len(t, v.orders, 3)
	gtc := v.orders[2]
	assert.Equal(t, models.TIFGTC, gtc.TIF)
	assert.Equal(t, 99.99, gtc.Price, "buy rests at best bid without crossing")
	assert.Equal(t, 0.01, gtc.Qty)
}

func TestPlacer_FailedWhenFallbackRejected(t *testing.T) {
	t.Parallel()

	v := newBookVenue()
	v.place = restsOnGTC(true)

	fill, err := NewPlacer(v, execCfg).Place(context.Background(), buyReq())

	require.ErrorIs(t, err, ErrPlacementFailed)
	assert.Equal(t, OutcomeFailed, fill.Outcome)
	assert.Len(t, v.orders, 3)
}

func TestPlacer_BookErrorSkipsToNextStep(t *testing.T) {
	t.Parallel()

	v := newBookVenue()
	v.bookErr = []error{errors.New("timeout")}
	v.place = fillsAt(0, 0)

	fill, err := NewPlacer(v, execCfg).Place(context.Background(), buyReq())

	require.NoError(t, err)
	assert.Equal(t, 2, fill.Step)
	require.Len(t, v.orders, 1)
	assert.Equal(t, 100.02, v.orders[0].Price)
}

func TestPlacer_EmptyQuantity(t *testing.T) {
	t.Parallel()

	req := buyReq()
	req.Qty = 0

	_, err := NewPlacer(newBookVenue(), execCfg).Place(context.Background(), req)

	require.ErrorIs(t, err, ErrPlacementFailed)
}
