package okx_client

import (
	"perp_bot/internal/modules/okx_client/service"

	"go.uber.org/fx"
)

// Module отдаёт REST-клиент OKX как реализацию площадки.
func Module() fx.Option {
	return fx.Module("okx_client",
		fx.Provide(
			service.NewClient,
		),
	)
}
