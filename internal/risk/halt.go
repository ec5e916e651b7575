package risk

import (
	"context"
	"time"

	"perp_bot/internal/notify"
	"perp_bot/internal/store"
	"perp_bot/pkg/logger"
)

type statusWriter interface {
	SetStatus(ctx context.Context, st store.ComponentStatus) error
}

// ProcessHalt пишет status:<component>=halted, шлёт уведомление и завершает процесс.
// exit == nil означает logger.Fatal.
func ProcessHalt(st statusWriter, n notify.Notifier, component string, exit func(reason string)) HaltFunc {
	if exit == nil {
		exit = func(reason string) {
			logger.Sync()
			logger.Fatal("halted: %s", reason)
		}
	}
	return func(reason string) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if st != nil {
			if err := st.SetStatus(ctx, store.ComponentStatus{
				Component: component,
				State:     "halted",
				Detail:    reason,
			}); err != nil {
				logger.Error("halt: status flush failed: %v", err)
			}
		}
		notify.Sendf(ctx, n, "⛔ %s halted: %s", component, reason)
		exit(reason)
	}
}
