package app

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/config"
	"github.com/alanyoungcy/stochtrader/internal/strategy"
)

// paramsFor builds the strategy parameters of one instrument from the
// shared [strategy] section and the instrument's tick size.
func paramsFor(cfg *config.Config, symbol string) (strategy.Params, error) {
	tick, err := cfg.TickSizeFor(symbol)
	if err != nil {
		return strategy.Params{}, fmt.Errorf("app: %s: %w", symbol, err)
	}
	s := cfg.Strategy
	p := strategy.DefaultParams(decimal.NewFromFloat(tick))
	p.Monday, p.Tuesday, p.Wednesday, p.Thursday, p.Friday = s.Monday, s.Tuesday, s.Wednesday, s.Thursday, s.Friday
	loc, err := s.Location()
	if err != nil {
		return strategy.Params{}, fmt.Errorf("app: timezone %q: %w", s.Timezone, err)
	}
	p.Location = loc
	p.SessionStart = s.SessionStart
	p.SessionEnd = s.SessionEnd
	p.ExitAtSessionEnd = s.ExitAtSessionEnd
	p.RangeLookback = s.RangeLookback
	p.MinimumRange = s.MinimumRange
	p.ADXLength = s.ADXLength
	p.SMALength = s.SMALength
	p.MinLongADX = s.MinLongADX
	p.MinShortADX = s.MinShortADX
	p.StochLength = s.StochLength
	p.StochSlowK = s.StochSlowK
	p.StochSlowD = s.StochSlowD
	p.BuySignal = s.BuySignal
	p.SellSignal = s.SellSignal
	p.TrailingDistanceTicks = s.TrailingDistanceTicks
	p.AccelerationSeed = decimal.NewFromFloat(s.AccelerationSeed)
	p.ProfitDistanceTicks = s.ProfitDistanceTicks
	if s.HistorySize > 0 {
		p.HistorySize = s.HistorySize
	}
	return p, nil
}
