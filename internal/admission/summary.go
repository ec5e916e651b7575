package admission

import (
	"fmt"
	"strings"

	"perp_bot/internal/models"
)

type Admission struct {
	Signal   models.TradeSignal
	TradeID  string
	Outcome  string
	Qty      float64
	Leverage int
	Err      string
}

// Summary: человекочитаемый итог цикла для уведомления.
type Summary struct {
	Considered int
	Malformed  int
	OpenCount  int
	Slots      int
	Admitted   []Admission
	Skipped    []Skip
}

func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📥 Admission: %d signals, %d admitted, %d skipped, open %d, slots %d\n",
		s.Considered, len(s.Admitted), len(s.Skipped), s.OpenCount, s.Slots)
	if s.Malformed > 0 {
		fmt.Fprintf(&b, "⚠️ malformed entries dropped: %d\n", s.Malformed)
	}
	for _, a := range s.Admitted {
		fmt.Fprintf(&b, "✅ %s %s (%s) str=%.0f", a.Signal.Side, a.Signal.Asset, a.Signal.BotID, a.Signal.Strength)
		if a.Outcome != "" {
			fmt.Fprintf(&b, " -> %s qty=%v x%d", a.Outcome, a.Qty, a.Leverage)
		}
		if a.Err != "" {
			fmt.Fprintf(&b, " err: %s", a.Err)
		}
		b.WriteByte('\n')
	}
	for _, sk := range s.Skipped {
		fmt.Fprintf(&b, "⏭ %s %s (%s) str=%.0f: %s\n", sk.Signal.Side, sk.Signal.Asset, sk.Signal.BotID, sk.Signal.Strength, sk.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}
