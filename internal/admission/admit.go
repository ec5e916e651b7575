package admission

import (
	"sort"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"
)

const (
	ReasonNotTopRanked = "not top ranked"
	ReasonDuplicate    = "weaker duplicate"
	ReasonPositionOpen = "position open"
	ReasonOrderResting = "order resting"
	ReasonCooldown     = "cooldown"
	ReasonNoMeta       = "no asset metadata"
	ReasonNoStrategy   = "no strategy config"
)

type Skip struct {
	Signal models.TradeSignal
	Reason string
}

// Batch: разобранный снимок очереди.
type Batch struct {
	Signals   []models.TradeSignal
	Done      map[string]bool
	Malformed int
}

// Decode разбирает записи очереди. Битые записи пропускаются с логом.
func Decode(raw [][]byte) Batch {
	b := Batch{Done: map[string]bool{}}
	for _, r := range raw {
		e, err := models.DecodeQueueEntry(r)
		if err != nil {
			b.Malformed++
			logger.Warn("queue: drop entry: %v", err)
			continue
		}
		switch e.Kind {
		case models.KindSignal:
			b.Signals = append(b.Signals, *e.Signal)
		case models.KindDone:
			b.Done[e.Done.BotID] = true
		}
	}
	return b
}

// Missing: ожидаемые продюсеры, ещё не приславшие done.
func (b Batch) Missing(expected []string) []string {
	var out []string
	for _, id := range expected {
		if !b.Done[id] {
			out = append(out, id)
		}
	}
	return out
}

// Blocker возвращает причину, по которой актив сейчас нельзя открывать, или "".
type Blocker func(asset string) string

type Result struct {
	Ready    bool
	Missing  []string
	Slots    int
	Admitted []models.TradeSignal
	Skipped  []Skip
}

// Admit выбирает сигналы цикла: только когда все ожидаемые продюсеры отчитались,
// по одному на актив (сильнейший, при равенстве первый), без заблокированных
// активов, не больше max(0, cap-open) лучших по силе.
func Admit(b Batch, expected []string, capacity, open int, blocked Blocker) Result {
	res := Result{Missing: b.Missing(expected)}
	if len(res.Missing) > 0 {
		return res
	}
	res.Ready = true

	best := map[string]int{}
	var uniq []models.TradeSignal
	for _, s := range b.Signals {
		i, seen := best[s.Asset]
		if !seen {
			best[s.Asset] = len(uniq)
			uniq = append(uniq, s)
			continue
		}
		if s.Strength > uniq[i].Strength {
			res.Skipped = append(res.Skipped, Skip{Signal: uniq[i], Reason: ReasonDuplicate})
			uniq[i] = s
		} else {
			res.Skipped = append(res.Skipped, Skip{Signal: s, Reason: ReasonDuplicate})
		}
	}

	candidates := uniq[:0:0]
	for _, s := range uniq {
		if blocked != nil {
			if reason := blocked(s.Asset); reason != "" {
				res.Skipped = append(res.Skipped, Skip{Signal: s, Reason: reason})
				continue
			}
		}
		candidates = append(candidates, s)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Strength > candidates[j].Strength
	})

	res.Slots = max(0, capacity-open)
	for i, s := range candidates {
		if i < res.Slots {
			res.Admitted = append(res.Admitted, s)
			continue
		}
		res.Skipped = append(res.Skipped, Skip{Signal: s, Reason: ReasonNotTopRanked})
	}
	return res
}
