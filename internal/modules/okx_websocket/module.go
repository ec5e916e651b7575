package okx_websocket

import (
	"perp_bot/internal/modules/okx_websocket/service"

	"go.uber.org/fx"
)

// Module отдаёт публичный поток свечей OKX.
func Module() fx.Option {
	return fx.Module("okx_websocket",
		fx.Provide(
			service.NewFeed,
		),
	)
}
