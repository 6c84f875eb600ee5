package strategy

import "github.com/alanyoungcy/stochtrader/internal/domain"

// Signal is the entry signal produced for one bar.
type Signal int

const (
	SignalNone Signal = iota
	SignalLong
	SignalShort
)

func (s Signal) String() string {
	switch s {
	case SignalLong:
		return "long"
	case SignalShort:
		return "short"
	default:
		return "none"
	}
}

// Direction maps the signal to the position it opens.
func (s Signal) Direction() domain.Direction {
	switch s {
	case SignalLong:
		return domain.Long
	case SignalShort:
		return domain.Short
	default:
		return domain.Flat
	}
}

// Detect looks for a %D threshold crossing between the previous bar (d1)
// and the current bar (d0). Long is checked first so at most one signal
// fires. Callers still guard on being flat.
func Detect(g Gates, d0, d1, buySignal, sellSignal float64) Signal {
	if g.Long && d1 <= buySignal && d0 > buySignal {
		return SignalLong
	}
	if g.Short && d1 >= sellSignal && d0 < sellSignal {
		return SignalShort
	}
	return SignalNone
}
