package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// accelerationDigits is the number of significant digits kept in the
// acceleration factor. The factor shrinks geometrically on small-tick
// instruments, so it is rounded relative to its magnitude, never to a fixed
// number of places.
const accelerationDigits = 20

// roundSignificant rounds d to digits significant digits.
func roundSignificant(d decimal.Decimal, digits int) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	msd := d.NumDigits() + int(d.Exponent())
	return d.Round(int32(digits - msd))
}

// TrailingState exists only while a position is open.
type TrailingState struct {
	Acceleration  decimal.Decimal
	FurthestClose decimal.Decimal
}

// NewTrailingState seeds the state for a fresh entry.
func NewTrailingState(seed, entry decimal.Decimal) TrailingState {
	return TrailingState{Acceleration: seed, FurthestClose: entry}
}

// TrailAction is the outcome of one trailing evaluation.
type TrailAction int

const (
	TrailHold TrailAction = iota
	TrailMove
	TrailFlatten
)

func (a TrailAction) String() string {
	switch a {
	case TrailMove:
		return "move"
	case TrailFlatten:
		return "flatten"
	default:
		return "hold"
	}
}

// TrailResult is the next state and the stop price it implies.
type TrailResult struct {
	State  TrailingState
	Stop   decimal.Decimal
	Action TrailAction
}

// Trail evaluates the trailing stop for one bar close. It is pure: the
// caller commits State and Stop only once the venue accepted the change.
//
// On a new favorable extreme the acceleration is multiplied by the distance
// between that extreme and the current stop, and the stop advances by the
// new acceleration. When the advanced stop would reach or cross the close,
// the position is flattened instead.
func Trail(dir domain.Direction, st TrailingState, stop, closePrice decimal.Decimal) TrailResult {
	out := TrailResult{State: st, Stop: stop, Action: TrailHold}

	switch dir {
	case domain.Long:
		if !closePrice.GreaterThan(st.FurthestClose) {
			return out
		}
		out.State.FurthestClose = closePrice
		out.State.Acceleration = roundSignificant(st.Acceleration.Mul(closePrice.Sub(stop)), accelerationDigits)
		if next := stop.Add(out.State.Acceleration); next.LessThan(closePrice) {
			out.Stop, out.Action = next, TrailMove
		} else {
			out.Action = TrailFlatten
		}

	case domain.Short:
		if !closePrice.LessThan(st.FurthestClose) {
			return out
		}
		out.State.FurthestClose = closePrice
		out.State.Acceleration = roundSignificant(st.Acceleration.Mul(stop.Sub(closePrice).Abs()), accelerationDigits)
		if next := stop.Sub(out.State.Acceleration); next.GreaterThan(closePrice) {
			out.Stop, out.Action = next, TrailMove
		} else {
			out.Action = TrailFlatten
		}
	}
	return out
}
