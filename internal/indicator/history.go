// Package indicator keeps a bounded bar history for one instrument and the
// stochastic, ADX, SMA and range series computed from it.
package indicator

import (
	"sync"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// DefaultCapacity bounds the bar history when the caller passes no size.
const DefaultCapacity = 500

// History is an append-only bar buffer. Bars are stored oldest-first and
// read newest-first: Bar(0) is the most recent bar.
type History struct {
	mu   sync.RWMutex
	bars []domain.Bar
	cap  int
}

// NewHistory creates a History that keeps at most capacity bars.
func NewHistory(capacity int) *History {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	return &History{bars: make([]domain.Bar, 0, capacity), cap: capacity}
}

// Append adds bar when it is strictly newer than the current bar and reports
// whether it was accepted.
func (h *History) Append(bar domain.Bar) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.bars); n > 0 && !bar.Time.After(h.bars[n-1].Time) {
		return false
	}
	if len(h.bars) == h.cap {
		copy(h.bars, h.bars[1:])
		h.bars = h.bars[:len(h.bars)-1]
	}
	h.bars = append(h.bars, bar)
	return true
}

// Len returns the number of stored bars.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bars)
}

// Current returns the newest bar, or the zero Bar when empty.
func (h *History) Current() domain.Bar {
	b, _ := h.Bar(0)
	return b
}

// Bar returns the bar n positions back from the newest.
func (h *History) Bar(n int) (domain.Bar, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n < 0 || n >= len(h.bars) {
		return domain.Bar{}, false
	}
	return h.bars[len(h.bars)-1-n], true
}

// columns returns oldest-first high, low and close slices.
func (h *History) columns() (high, low, closes []float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	high = make([]float64, len(h.bars))
	low = make([]float64, len(h.bars))
	closes = make([]float64, len(h.bars))
	for i, b := range h.bars {
		high[i] = b.High
		low[i] = b.Low
		closes[i] = b.Close
	}
	return high, low, closes
}
