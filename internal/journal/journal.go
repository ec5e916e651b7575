package journal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"perp_bot/internal/models"
	"perp_bot/internal/store"
	"perp_bot/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id          TEXT PRIMARY KEY,
	bot_id      TEXT NOT NULL,
	asset       TEXT NOT NULL,
	side        TEXT NOT NULL,
	strength    DOUBLE PRECISION NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	quantity    DOUBLE PRECISION NOT NULL DEFAULT 0,
	leverage    INTEGER NOT NULL DEFAULT 0,
	opened_at   TIMESTAMPTZ NOT NULL,
	closed_at   TIMESTAMPTZ,
	exit_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
	pnl         DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS trades_bot_closed_idx ON trades (bot_id, closed_at);
`

const upsertTrade = `
INSERT INTO trades (id, bot_id, asset, side, strength, status, entry_price, quantity, leverage,
                    opened_at, closed_at, exit_price, pnl, reason, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
ON CONFLICT (id) DO UPDATE SET
	status      = EXCLUDED.status,
	entry_price = EXCLUDED.entry_price,
	quantity    = EXCLUDED.quantity,
	leverage    = EXCLUDED.leverage,
	closed_at   = EXCLUDED.closed_at,
	exit_price  = EXCLUDED.exit_price,
	pnl         = EXCLUDED.pnl,
	reason      = EXCLUDED.reason,
	updated_at  = now()`

const summaryQuery = `
SELECT bot_id,
       count(*) FILTER (WHERE status = 'closed'),
       count(*) FILTER (WHERE status = 'closed' AND pnl > 0),
       count(*) FILTER (WHERE status = 'closed' AND pnl < 0),
       count(*) FILTER (WHERE status = 'failed'),
       COALESCE(sum(pnl) FILTER (WHERE status = 'closed'), 0)
FROM trades
WHERE COALESCE(closed_at, updated_at) >= $1
GROUP BY bot_id
ORDER BY bot_id`

// BotPnL: итог стратегии за период.
type BotPnL struct {
	BotID  string
	Closed int
	Wins   int
	Losses int
	Failed int
	PnL    float64
}

// Journal пишет завершённые сделки в Postgres. Без базы журнал выключен,
// а сводка считается по записям trade:* в хранилище.
type Journal struct {
	tx    db.TxManager
	store *store.Lifecycle
}

func New(tx *db.PgTxManager, st *store.Lifecycle) *Journal {
	j := &Journal{store: st}
	if tx != nil {
		j.tx = tx
	}
	return j
}

func newWithTx(tx db.TxManager, st *store.Lifecycle) *Journal {
	return &Journal{tx: tx, store: st}
}

func (j *Journal) Enabled() bool { return j.tx != nil }

func (j *Journal) Migrate(ctx context.Context) error {
	if !j.Enabled() {
		return nil
	}
	return j.tx.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctx, schema)
		return err
	})
}

// Record сохраняет сделку. Повторная запись той же сделки обновляет строку.
func (j *Journal) Record(ctx context.Context, t models.TradeRecord) error {
	if !j.Enabled() {
		return nil
	}

	var closedAt *time.Time
	if !t.ClosedAt.IsZero() {
		c := t.ClosedAt.UTC()
		closedAt = &c
	}

	return j.tx.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctx, upsertTrade,
			t.ID, t.BotID, t.Asset, string(t.Side), t.Strength, string(t.Status),
			t.EntryPrice, t.Quantity, t.Leverage,
			t.OpenedAt.UTC(), closedAt, t.ExitPrice, t.PnL, t.Reason,
		)
		if err != nil {
			return fmt.Errorf("upsert trade %s: %w", t.ID, err)
		}
		return nil
	})
}

func (j *Journal) Summary(ctx context.Context, since time.Time) ([]BotPnL, error) {
	if !j.Enabled() {
		return j.summaryFromStore(ctx, since)
	}

	var out []BotPnL
	err := j.tx.RunReadOnly(ctx, func(ctx context.Context, tx db.Transaction) error {
		rows, err := tx.Query(ctx, summaryQuery, since.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r BotPnL
			if err := rows.Scan(&r.BotID, &r.Closed, &r.Wins, &r.Losses, &r.Failed, &r.PnL); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("pnl summary: %w", err)
	}
	return out, nil
}

func (j *Journal) summaryFromStore(ctx context.Context, since time.Time) ([]BotPnL, error) {
	trades, err := j.store.ListTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	byBot := map[string]*BotPnL{}
	row := func(bot string) *BotPnL {
		r, ok := byBot[bot]
		if !ok {
			r = &BotPnL{BotID: bot}
			byBot[bot] = r
		}
		return r
	}

	for _, t := range trades {
		switch {
		case t.Status == models.TradeClosed && !t.ClosedAt.Before(since):
			r := row(t.BotID)
			r.Closed++
			r.PnL += t.PnL
			if t.PnL > 0 {
				r.Wins++
			} else if t.PnL < 0 {
				r.Losses++
			}
		case t.Status == models.TradeFailed && !t.OpenedAt.Before(since):
			row(t.BotID).Failed++
		}
	}

	out := make([]BotPnL, 0, len(byBot))
	for _, r := range byBot {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].BotID < out[k].BotID })
	return out, nil
}
