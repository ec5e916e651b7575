package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"perp_bot/internal/models"
)

// fakeVenue отвечает по сценарию: place вызывается с номером попытки (с нуля).
type fakeVenue struct {
	mu sync.Mutex

	book     models.Book
	bookErr  []error
	account  models.AccountState
	meta     models.AssetMeta
	place    func(n int, o models.Order) (models.OrderResult, error)
	levErr   error
	orders   []models.Order
	leverage map[string]int
	cancels  []string
	bookCall int
	closed   *models.ClosedPosition
}

func (f *fakeVenue) Book(_ context.Context, asset string) (models.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.bookCall
	f.bookCall++
	if n < len(f.bookErr) && f.bookErr[n] != nil {
		return models.Book{}, f.bookErr[n]
	}
	b := f.book
	b.Asset = asset
	return b, nil
}

func (f *fakeVenue) PlaceOrder(_ context.Context, o models.Order) (models.OrderResult, error) {
	f.mu.Lock()
	n := len(f.orders)
	f.orders = append(f.orders, o)
	f.mu.Unlock()
	if f.place == nil {
		return models.OrderResult{}, errors.New("no script")
	}
	return f.place(n, o)
}

func (f *fakeVenue) Account(context.Context) (models.AccountState, error) {
	return f.account, nil
}

func (f *fakeVenue) AssetMeta(_ context.Context, asset string) (models.AssetMeta, error) {
	m := f.meta
	m.Asset = asset
	return m, nil
}

func (f *fakeVenue) SetLeverage(_ context.Context, asset string, leverage int) error {
	if f.levErr != nil {
		return f.levErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leverage == nil {
		f.leverage = map[string]int{}
	}
	f.leverage[asset] = leverage
	return nil
}

func (f *fakeVenue) CancelTriggers(_ context.Context, asset string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, asset)
	return 1, nil
}

func (f *fakeVenue) ClosedPosition(_ context.Context, asset string, since time.Time) (models.ClosedPosition, bool, error) {
	if f.closed == nil || f.closed.Asset != asset || f.closed.ClosedAt.Before(since) {
		return models.ClosedPosition{}, false, nil
	}
	return *f.closed, true, nil
}

type fakeJournal struct {
	records []models.TradeRecord
}

func (j *fakeJournal) Record(_ context.Context, t models.TradeRecord) error {
	j.records = append(j.records, t)
	return nil
}

// fills: попытки 0..n-1 ничего не исполняют, попытка n исполняется целиком.
func fillsAt(n int, avg float64) func(int, models.Order) (models.OrderResult, error) {
	return func(i int, o models.Order) (models.OrderResult, error) {
		if i < n {
			return models.OrderResult{OrderID: "miss"}, nil
		}
		return models.OrderResult{OrderID: "ok", FilledQty: o.Qty, AvgPrice: avg}, nil
	}
}

func restsOnGTC(rejectGTC bool) func(int, models.Order) (models.OrderResult, error) {
	return func(i int, o models.Order) (models.OrderResult, error) {
		if o.TIF == models.TIFIOC {
			return models.OrderResult{OrderID: "miss"}, nil
		}
		if rejectGTC {
			return models.OrderResult{}, errors.New("sCode 51008: insufficient margin")
		}
		return models.OrderResult{OrderID: "gtc-1", Resting: true}, nil
	}
}
