package journal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"perp_bot/internal/models"
	"perp_bot/internal/notify"
	"perp_bot/internal/store"
	"perp_bot/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	sql  []string
	args [][]any
}

func (f *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeTx) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("query not supported by fake")
}

func (f *fakeTx) QueryRow(context.Context, string, ...interface{}) pgx.Row { return nil }

type fakeManager struct{ tx *fakeTx }

func (m *fakeManager) RunMaster(ctx context.Context, fn func(context.Context, db.Transaction) error) error {
	return fn(ctx, m.tx)
}

func (m *fakeManager) RunReadOnly(ctx context.Context, fn func(context.Context, db.Transaction) error) error {
	return fn(ctx, m.tx)
}

func trade(id, bot string, status models.TradeStatus, pnl float64, closed time.Time) models.TradeRecord {
	return models.TradeRecord{
		ID: id, BotID: bot, Asset: "BTC", Side: models.SideLong, Status: status,
		EntryPrice: 100, Quantity: 1, Leverage: 3, OpenedAt: closed.Add(-time.Hour),
		ClosedAt: closed, PnL: pnl,
	}
}

func TestRecord_Disabled(t *testing.T) {
	t.Parallel()
	j := New(nil, store.New(store.NewMemoryKV()))

	assert.False(t, j.Enabled())
	assert.NoError(t, j.Record(context.Background(), models.TradeRecord{ID: "x"}))
	assert.NoError(t, j.Migrate(context.Background()))
}

func TestRecord_Upserts(t *testing.T) {
	t.Parallel()
	tx := &fakeTx{}
	j := newWithTx(&fakeManager{tx: tx}, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(context.Background(), trade("t1", "trend-btc", models.TradeClosed, 5, now)))
	failed := trade("t2", "trend-btc", models.TradeFailed, 0, now)
	failed.ClosedAt = time.Time{}
	require.NoError(t, j.Record(context.Background(), failed))

	require.Len(t, tx.sql, 2)
	assert.Contains(t, tx.sql[0], "ON CONFLICT (id) DO UPDATE")

	first := tx.args[0]
	assert.Equal(t, "t1", first[0])
	assert.Equal(t, "closed", first[5])
	require.IsType(t, &time.Time{}, first[10])
	assert.Equal(t, now, *first[10].(*time.Time))

	assert.Nil(t, tx.args[1][10], "open or failed trades have no close time")
}

func TestSummary_FallsBackToStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.New(store.NewMemoryKV())
	since := time.Now().Add(-24 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	for _, tr := range []models.TradeRecord{
		trade("a", "trend-btc", models.TradeClosed, 12, recent),
		trade("b", "trend-btc", models.TradeClosed, -4, recent),
		trade("c", "trend-btc", models.TradeFailed, 0, recent),
		trade("d", "trend-btc", models.TradeClosed, 100, since.Add(-time.Hour)),
		trade("e", "trend-alts", models.TradeClosed, 3, recent),
		trade("f", "trend-alts", models.TradeConfirmed, 0, recent),
	} {
		require.NoError(t, st.SaveTrade(ctx, tr))
	}

	rows, err := New(nil, st).Summary(ctx, since)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, BotPnL{BotID: "trend-alts", Closed: 1, Wins: 1, PnL: 3}, rows[0])
	assert.Equal(t, BotPnL{BotID: "trend-btc", Closed: 2, Wins: 1, Losses: 1, Failed: 1, PnL: 8}, rows[1])
}

func TestDailyJob_ResetsCounterAndReports(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.New(store.NewMemoryKV())
	rec := &notify.Recorder{}

	_, err := st.ApplyRealizedPnL(ctx, -12.5)
	require.NoError(t, err)

	job := NewDailyJob(New(nil, st), st, rec)
	require.NoError(t, job.Run(ctx))

	loss, err := st.DailyLoss(ctx)
	require.NoError(t, err)
	assert.Zero(t, loss)
	assert.True(t, strings.HasPrefix(rec.Last(), "📊 PnL"))
	assert.Contains(t, rec.Last(), "daily loss counter 12.50")

	status, err := st.GetStatus(ctx, ResetComponent)
	require.NoError(t, err)
	assert.Equal(t, "done", status.State)
}

func TestDailyJob_RunIfDueOncePerDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.New(store.NewMemoryKV())

	clock := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	job := NewDailyJob(New(nil, st), st, nil)
	job.now = func() time.Time { return clock }
	job.lastDay = dayStart(clock)

	ran, err := job.RunIfDue(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	clock = clock.Add(2 * time.Minute)
	ran, err = job.RunIfDue(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = job.RunIfDue(ctx)
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestFormatSummary(t *testing.T) {
	t.Parallel()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	out := FormatSummary(day, []BotPnL{{BotID: "trend-btc", Closed: 2, Wins: 1, Losses: 1, PnL: 8}}, 0)

	assert.Contains(t, out, "2026-03-01")
	assert.Contains(t, out, "trend-btc: +8.00 USDT")
	assert.Contains(t, out, "total +8.00 USDT")
}
