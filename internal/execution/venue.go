package execution

import (
	"context"
	"time"

	"perp_bot/internal/models"
)

// Market: минимум, нужный протоколу выставления ордера.
type Market interface {
	Book(ctx context.Context, asset string) (models.Book, error)
	PlaceOrder(ctx context.Context, o models.Order) (models.OrderResult, error)
}

// Venue: то, что входу и выходу нужно от биржи.
type Venue interface {
	Market
	Account(ctx context.Context) (models.AccountState, error)
	AssetMeta(ctx context.Context, asset string) (models.AssetMeta, error)
	SetLeverage(ctx context.Context, asset string, leverage int) error
	CancelTriggers(ctx context.Context, asset string) (int, error)
	ClosedPosition(ctx context.Context, asset string, since time.Time) (models.ClosedPosition, bool, error)
}

// Journal получает закрытые и проваленные сделки. nil значит журнал выключен.
type Journal interface {
	Record(ctx context.Context, t models.TradeRecord) error
}
