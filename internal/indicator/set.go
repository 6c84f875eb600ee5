package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// Config holds indicator lookback periods.
type Config struct {
	StochLength   int
	StochSlowK    int
	StochSlowD    int
	ADXLength     int
	SMALength     int
	RangeLookback int
}

// Set recomputes every series from a History. Accessors use newest-first
// indexing to match History.Bar.
type Set struct {
	cfg    Config
	warmup int

	d, adx, sma []float64
	high, low   []float64
	ready       bool
}

// NewSet creates a Set for the given periods.
func NewSet(cfg Config) *Set {
	return &Set{cfg: cfg, warmup: Warmup(cfg)}
}

// Warmup is the number of bars needed before index 1 of every series is
// defined.
func Warmup(cfg Config) int {
	lookbacks := []int{
		(cfg.StochLength - 1) + (cfg.StochSlowK - 1) + (cfg.StochSlowD - 1),
		2*cfg.ADXLength - 1,
		cfg.SMALength - 1,
		cfg.RangeLookback - 1,
	}
	longest := 0
	for _, lb := range lookbacks {
		longest = max(longest, lb)
	}
	return longest + 2
}

// Update recomputes all series from h. Until h holds Warmup bars the set
// stays not ready and accessors return NaN.
func (s *Set) Update(h *History) {
	if h.Len() < s.warmup {
		s.ready = false
		return
	}
	high, low, closes := h.columns()

	_, s.d = talib.Stoch(high, low, closes,
		s.cfg.StochLength, s.cfg.StochSlowK, talib.SMA, s.cfg.StochSlowD, talib.SMA)
	s.adx = talib.Adx(high, low, closes, s.cfg.ADXLength)
	s.sma = talib.Sma(closes, s.cfg.SMALength)
	s.high = talib.Max(high, s.cfg.RangeLookback)
	s.low = talib.Min(low, s.cfg.RangeLookback)
	s.ready = true
}

// Ready reports whether the last Update had enough bars.
func (s *Set) Ready() bool { return s.ready }

// StochasticD returns slow %D n bars back.
func (s *Set) StochasticD(n int) float64 { return s.at(s.d, n) }

// ADX returns the average directional index n bars back.
func (s *Set) ADX(n int) float64 { return s.at(s.adx, n) }

// SMA returns the close moving average n bars back.
func (s *Set) SMA(n int) float64 { return s.at(s.sma, n) }

// HighestHigh returns the highest high over the range lookback ending at the
// newest bar.
func (s *Set) HighestHigh() float64 { return s.at(s.high, 0) }

// LowestLow returns the lowest low over the range lookback ending at the
// newest bar.
func (s *Set) LowestLow() float64 { return s.at(s.low, 0) }

func (s *Set) at(series []float64, n int) float64 {
	if !s.ready || n < 0 || n >= len(series) {
		return math.NaN()
	}
	return series[len(series)-1-n]
}
