package main

import (
	"context"
	"fmt"
	"os"

	"perp_bot/internal/admission"
	"perp_bot/internal/execution"
	"perp_bot/internal/exits"
	"perp_bot/internal/journal"
	"perp_bot/internal/ladder"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/modules/okx_websocket"
	"perp_bot/internal/modules/postgres"
	"perp_bot/internal/modules/redis"
	telegram "perp_bot/internal/modules/telegram_bot"
	"perp_bot/internal/producer"
	"perp_bot/internal/risk"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var (
	configFile string
	botID      string
)

var rootCmd = &cobra.Command{
	Use:   "perpbot",
	Short: "Perpetual futures orchestration: producers, admission, exit ladders",
	Long: `perpbot runs one process per role. Processes share state only through Redis:

  producer    scores a bot's watchlist and pushes signals into the shared queue
  admission   admits, sizes and enters the strongest signals once all producers are done
  reconciler  places take-profit / stop-loss ladders for open positions
  exits       trails open positions of one bot and closes them on exit conditions
  reset       sends the PnL summary and resets the daily loss counter`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			_ = os.Setenv("CONFIG_FILE", configFile)
		}
	},
}

var producerCmd = &cobra.Command{
	Use:   "producer",
	Short: "Run the signal producer of one bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "producer:" + botID
		return runApp(
			base(name),
			okx_websocket.Module(),
			producer.Module(botID),
		)
	},
}

var admissionCmd = &cobra.Command{
	Use:   "admission",
	Short: "Run the admission controller and the daily reset schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(
			base(admission.Component),
			venue(),
			postgres.Module(),
			journal.Module(),
			risk.Module(admission.Component),
			execution.Module(),
			admission.Module(),
			fx.Invoke(journal.ScheduleReset),
		)
	},
}

var reconcilerCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Run the exit-ladder reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(
			base(ladder.Component),
			venue(),
			ladder.Module(),
		)
	},
}

var exitsCmd = &cobra.Command{
	Use:   "exits",
	Short: "Run the exit loop of one bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "exits:" + botID
		return runApp(
			base(name),
			venue(),
			postgres.Module(),
			journal.Module(),
			risk.Module(name),
			execution.Module(),
			fx.Provide(func(e *execution.ExitExecutor) exits.Closer { return e }),
			exits.Module(botID),
		)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Send the PnL summary and reset the daily loss counter now",
	RunE: func(cmd *cobra.Command, args []string) error {
		var job *journal.DailyJob
		app := fx.New(
			fx.Supply(serviceName(journal.ResetComponent)),
			config.Module(),
			fx.Invoke(initLogger),
			redis.Module(),
			postgres.Module(),
			telegram.Module(),
			fx.Supply(telegram.Prefix(journal.ResetComponent)),
			journal.Module(),
			fx.Populate(&job),
			fx.NopLogger,
		)
		if err := app.Err(); err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := app.Start(ctx); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		defer func() { _ = app.Stop(context.Background()) }()

		return job.Run(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file name under configs/ or absolute path (overrides CONFIG_FILE)")

	for _, c := range []*cobra.Command{producerCmd, exitsCmd} {
		c.Flags().StringVar(&botID, "bot", "", "bot id from the strategies file")
		_ = c.MarkFlagRequired("bot")
	}

	rootCmd.AddCommand(producerCmd, admissionCmd, reconcilerCmd, exitsCmd, resetCmd)
}
