package strategy

import (
	"context"

	"github.com/alanyoungcy/stochtrader/internal/domain"
	"github.com/alanyoungcy/stochtrader/internal/indicator"
)

// BarHandler is the per-instrument decision capability driven by the engine.
// Every method except Snapshot is called from one goroutine at a time.
type BarHandler interface {
	Name() string
	Symbol() string
	OnInitialize(ctx context.Context) error
	OnNewBar(ctx context.Context, bar domain.Bar) error
	OnOrderEvent(ctx context.Context, ev domain.OrderEvent) error
	ClosePosition(ctx context.Context, reason string) error
	Snapshot() domain.PositionSnapshot
}

// Indicators is the indicator service used by a handler. Series accessors
// use newest-first indexing.
type Indicators interface {
	Update(h *indicator.History)
	Ready() bool
	StochasticD(n int) float64
	ADX(n int) float64
	SMA(n int) float64
	HighestHigh() float64
	LowestLow() float64
}
