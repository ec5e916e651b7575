package producer

import (
	"sync"
	"time"

	"perp_bot/internal/models"
)

// History: скользящее окно цен закрытия по активам.
// Пишет поток свечей, читает цикл оценки.
type History struct {
	mu     sync.RWMutex
	size   int
	closes map[string][]float64
	last   map[string]time.Time
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 200
	}
	return &History{
		size:   size,
		closes: make(map[string][]float64),
		last:   make(map[string]time.Time),
	}
}

// Seed заменяет окно актива свечами из REST (от старых к новым).
func (h *History) Seed(asset string, candles []models.CandleTick) {
	h.mu.Lock()
	defer h.mu.Unlock()

	closes := make([]float64, 0, len(candles))
	var last time.Time
	for _, c := range candles {
		if !c.Start.After(last) {
			continue
		}
		closes = append(closes, c.Close)
		last = c.Start
	}
	h.closes[asset] = h.trim(closes)
	h.last[asset] = last
}

// Append добавляет закрытую свечу. Повторы и запоздавшие свечи игнорируются.
func (h *History) Append(c models.CandleTick) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !c.Start.After(h.last[c.InstID]) {
		return false
	}
	h.closes[c.InstID] = h.trim(append(h.closes[c.InstID], c.Close))
	h.last[c.InstID] = c.Start
	return true
}

// Closes: копия окна, безопасна для чтения без блокировки.
func (h *History) Closes(asset string) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	src := h.closes[asset]
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

func (h *History) trim(xs []float64) []float64 {
	if len(xs) <= h.size {
		return xs
	}
	return append([]float64(nil), xs[len(xs)-h.size:]...)
}
