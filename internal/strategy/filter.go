package strategy

import (
	"time"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// Gates carries the per-bar entry permissions.
type Gates struct {
	Long  bool
	Short bool
}

// FilterInput is everything the filters look at for one bar.
type FilterInput struct {
	Time        time.Time
	Position    domain.Direction
	HighestHigh float64
	LowestLow   float64
	ADX         float64
	SMA0        float64
	SMA1        float64
}

// FilterEvaluator combines the day, session, volatility and trend filters.
type FilterEvaluator struct {
	params Params
}

// NewFilterEvaluator creates a FilterEvaluator over p.
func NewFilterEvaluator(p Params) FilterEvaluator {
	return FilterEvaluator{params: p}
}

// local converts t to the exchange timezone.
func (f FilterEvaluator) local(t time.Time) time.Time {
	if f.params.Location == nil {
		return t.UTC()
	}
	return t.In(f.params.Location)
}

// DayAllowed applies the weekday enable flags in the exchange timezone.
func (f FilterEvaluator) DayAllowed(t time.Time) bool {
	return f.params.DayEnabled(f.local(t).Weekday())
}

// InSession applies the session window in the exchange timezone. A start
// after the end wraps midnight.
func (f FilterEvaluator) InSession(t time.Time) bool {
	tod := domain.TimeOfDayOf(f.local(t))
	start, end := f.params.SessionStart, f.params.SessionEnd
	if start <= end {
		return tod >= start && tod <= end
	}
	return tod >= start || tod <= end
}

// VolatilityAllowed requires the lookback high-low range to exceed the
// configured minimum.
func (f FilterEvaluator) VolatilityAllowed(highest, lowest float64) bool {
	return highest-lowest > f.params.MinimumRange
}

// Trend returns the trend gates. Both stay closed unless flat, and short is
// only considered when long was not enabled.
func (f FilterEvaluator) Trend(pos domain.Direction, adx, sma0, sma1 float64) Gates {
	var g Gates
	if pos != domain.Flat {
		return g
	}
	if adx >= f.params.MinLongADX && sma0 > sma1 {
		g.Long = true
		return g
	}
	if adx >= f.params.MinShortADX && sma0 < sma1 {
		g.Short = true
	}
	return g
}

// Evaluate ANDs every filter category into the final gates.
func (f FilterEvaluator) Evaluate(in FilterInput) Gates {
	if !f.DayAllowed(in.Time) || !f.InSession(in.Time) || !f.VolatilityAllowed(in.HighestHigh, in.LowestLow) {
		return Gates{}
	}
	return f.Trend(in.Position, in.ADX, in.SMA0, in.SMA1)
}
