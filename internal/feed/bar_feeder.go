package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// Engine is the part of the strategy engine the feeder drives.
type Engine interface {
	HandleBar(ctx context.Context, bar domain.Bar) error
	ProcessBar(ctx context.Context, bar domain.Bar) error
	HandleOrderEvent(ctx context.Context, ev domain.OrderEvent) error
}

// FillMatcher matches resting orders against a bar. The paper venue
// implements it.
type FillMatcher interface {
	OnBar(bar domain.Bar) []domain.OrderEvent
}

// EventRecorder journals venue events before the engine sees them.
type EventRecorder interface {
	RecordEvent(ctx context.Context, ev domain.OrderEvent)
}

// BarFeeder delivers bars to the engine. With a FillMatcher, the bar is
// matched first and the resulting order events reach the engine before the
// bar itself, so the manager sees fills that happened inside the bar before
// it re-evaluates on the close. The feeder then waits for the handler, so an
// order submitted on bar N is first matched against bar N+1.
type BarFeeder struct {
	engine   Engine
	matcher  FillMatcher
	recorder EventRecorder
	logger   *slog.Logger
}

// NewBarFeeder creates a BarFeeder. matcher and recorder may be nil.
func NewBarFeeder(engine Engine, matcher FillMatcher, recorder EventRecorder, logger *slog.Logger) *BarFeeder {
	return &BarFeeder{
		engine:   engine,
		matcher:  matcher,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "bar_feeder")),
	}
}

// Deliver implements BarFunc.
func (f *BarFeeder) Deliver(ctx context.Context, bar domain.Bar) error {
	if f.matcher == nil {
		if err := f.engine.HandleBar(ctx, bar); err != nil {
			return fmt.Errorf("feed: deliver bar %s: %w", bar.Symbol, err)
		}
		return nil
	}
	for _, ev := range f.matcher.OnBar(bar) {
		if err := f.DeliverEvent(ctx, ev); err != nil {
			return err
		}
	}
	if err := f.engine.ProcessBar(ctx, bar); err != nil {
		return fmt.Errorf("feed: deliver bar %s: %w", bar.Symbol, err)
	}
	return nil
}

// DeliverEvent journals ev and forwards it to the engine.
func (f *BarFeeder) DeliverEvent(ctx context.Context, ev domain.OrderEvent) error {
	if f.recorder != nil {
		f.recorder.RecordEvent(ctx, ev)
	}
	f.logger.Debug("order event",
		slog.String("order_id", ev.OrderID),
		slog.String("kind", string(ev.Kind)),
		slog.String("price", ev.Price.String()),
	)
	if err := f.engine.HandleOrderEvent(ctx, ev); err != nil {
		return fmt.Errorf("feed: deliver order event %s: %w", ev.OrderID, err)
	}
	return nil
}
