package main

import (
	"perp_bot/internal/admission"
	"perp_bot/internal/execution"
	"perp_bot/internal/exits"
	"perp_bot/internal/ladder"
	"perp_bot/internal/modules/okx_client"
	okx "perp_bot/internal/modules/okx_client/service"

	"go.uber.org/fx"
)

// venue отдаёт REST-клиент OKX под интерфейсами, которые ждут компоненты.
func venue() fx.Option {
	return fx.Options(
		okx_client.Module(),
		fx.Provide(
			func(c *okx.Client) execution.Market { return c },
			func(c *okx.Client) execution.Venue { return c },
			func(c *okx.Client) admission.Venue { return c },
			func(c *okx.Client) ladder.Venue { return c },
			func(c *okx.Client) exits.Venue { return c },
		),
	)
}

var (
	_ execution.Venue = (*okx.Client)(nil)
	_ admission.Venue = (*okx.Client)(nil)
	_ ladder.Venue    = (*okx.Client)(nil)
	_ exits.Venue     = (*okx.Client)(nil)
)
