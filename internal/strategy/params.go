package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
	"github.com/alanyoungcy/stochtrader/internal/indicator"
)

// Params is the immutable input set of one strategy run for one instrument.
type Params struct {
	Monday    bool
	Tuesday   bool
	Wednesday bool
	Thursday  bool
	Friday    bool

	// Location is the exchange timezone of the day and session filters.
	// Nil means UTC.
	Location         *time.Location
	SessionStart     domain.TimeOfDay
	SessionEnd       domain.TimeOfDay
	ExitAtSessionEnd bool

	RangeLookback int
	MinimumRange  float64

	ADXLength   int
	SMALength   int
	MinLongADX  float64
	MinShortADX float64

	StochLength int
	StochSlowK  int
	StochSlowD  int
	BuySignal   float64
	SellSignal  float64

	TrailingDistanceTicks int
	AccelerationSeed      decimal.Decimal
	ProfitDistanceTicks   int
	TickSize              decimal.Decimal

	HistorySize int
}

// DefaultParams returns the stock parameter set with the given tick size.
func DefaultParams(tickSize decimal.Decimal) Params {
	return Params{
		Monday:                true,
		Tuesday:               true,
		Wednesday:             true,
		Thursday:              true,
		Friday:                true,
		SessionStart:          domain.NewTimeOfDay(0, 0, 0),
		SessionEnd:            domain.NewTimeOfDay(23, 59, 59),
		RangeLookback:         20,
		ADXLength:             14,
		SMALength:             20,
		MinLongADX:            20,
		MinShortADX:           20,
		StochLength:           14,
		StochSlowK:            3,
		StochSlowD:            3,
		BuySignal:             51,
		SellSignal:            49,
		TrailingDistanceTicks: 24,
		AccelerationSeed:      decimal.NewFromFloat(0.2),
		ProfitDistanceTicks:   77,
		TickSize:              tickSize,
		HistorySize:           indicator.DefaultCapacity,
	}
}

// Validate reports every missing or out-of-range parameter. The returned
// error wraps domain.ErrInvalidConfig.
func (p Params) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(p.RangeLookback >= 1, "range lookback %d < 1", p.RangeLookback)
	check(p.MinimumRange >= 0, "minimum range %v < 0", p.MinimumRange)
	check(p.ADXLength >= 1, "adx length %d < 1", p.ADXLength)
	check(p.SMALength >= 2, "sma length %d < 2", p.SMALength)
	check(p.StochLength >= 1 && p.StochSlowK >= 1 && p.StochSlowD >= 1,
		"stochastic periods %d/%d/%d must be >= 1", p.StochLength, p.StochSlowK, p.StochSlowD)
	check(p.MinLongADX >= 0 && p.MinLongADX <= 100, "min long adx %v outside [0,100]", p.MinLongADX)
	check(p.MinShortADX >= 0 && p.MinShortADX <= 100, "min short adx %v outside [0,100]", p.MinShortADX)
	check(p.BuySignal > 0 && p.BuySignal < 100, "buy signal %v outside (0,100)", p.BuySignal)
	check(p.SellSignal > 0 && p.SellSignal < 100, "sell signal %v outside (0,100)", p.SellSignal)
	check(p.TrailingDistanceTicks >= 1, "trailing distance %d ticks < 1", p.TrailingDistanceTicks)
	check(p.ProfitDistanceTicks >= 1, "profit distance %d ticks < 1", p.ProfitDistanceTicks)
	check(p.AccelerationSeed.IsPositive(), "acceleration seed %s must be > 0", p.AccelerationSeed)
	check(p.TickSize.IsPositive(), "tick size %s must be > 0", p.TickSize)
	check(p.SessionStart >= 0 && p.SessionStart < domain.NewTimeOfDay(24, 0, 0), "session start out of range")
	check(p.SessionEnd >= 0 && p.SessionEnd < domain.NewTimeOfDay(24, 0, 0), "session end out of range")
	check(p.HistorySize >= indicator.Warmup(p.IndicatorConfig()),
		"history size %d smaller than indicator warm-up %d", p.HistorySize, indicator.Warmup(p.IndicatorConfig()))
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
}

// StopMargin is the initial stop distance in price units.
func (p Params) StopMargin() decimal.Decimal {
	return p.TickSize.Mul(decimal.NewFromInt(int64(p.TrailingDistanceTicks)))
}

// ProfitMargin is the profit-target distance in price units.
func (p Params) ProfitMargin() decimal.Decimal {
	return p.TickSize.Mul(decimal.NewFromInt(int64(p.ProfitDistanceTicks)))
}

// IndicatorConfig maps the lookback periods onto indicator.Config.
func (p Params) IndicatorConfig() indicator.Config {
	return indicator.Config{
		StochLength:   p.StochLength,
		StochSlowK:    p.StochSlowK,
		StochSlowD:    p.StochSlowD,
		ADXLength:     p.ADXLength,
		SMALength:     p.SMALength,
		RangeLookback: p.RangeLookback,
	}
}

// DayEnabled reports the enable flag for the weekday. Weekends have no flag
// and are always enabled.
func (p Params) DayEnabled(d time.Weekday) bool {
	switch d {
	case time.Monday:
		return p.Monday
	case time.Tuesday:
		return p.Tuesday
	case time.Wednesday:
		return p.Wednesday
	case time.Thursday:
		return p.Thursday
	case time.Friday:
		return p.Friday
	default:
		return true
	}
}
