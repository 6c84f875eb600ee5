package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// PaperVenue fills orders in-process against the bar stream. Market orders
// fill at the last close; stop and limit orders rest until a bar's range
// reaches them. A fill cancels the rest of the order's OCO group.
type PaperVenue struct {
	mu        sync.Mutex
	book      *OcoBook
	lastClose map[string]decimal.Decimal
	lastTime  map[string]time.Time
	pending   []domain.OrderEvent
	logger    *slog.Logger
}

// NewPaperVenue creates an empty paper venue.
func NewPaperVenue(logger *slog.Logger) *PaperVenue {
	return &PaperVenue{
		book:      NewOcoBook(),
		lastClose: make(map[string]decimal.Decimal),
		lastTime:  make(map[string]time.Time),
		logger:    logger.With(slog.String("component", "paper_venue")),
	}
}

// Submit implements Venue.
func (v *PaperVenue) Submit(_ context.Context, order domain.Order) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if order.Quantity != 1 {
		return fmt.Errorf("paper venue: quantity %d: %w", order.Quantity, domain.ErrOrderRejected)
	}
	switch order.Kind {
	case domain.OrderKindMarket:
		px, ok := v.lastClose[order.Symbol]
		if !ok {
			return fmt.Errorf("paper venue: no price for %s: %w", order.Symbol, domain.ErrOrderRejected)
		}
		v.pending = append(v.pending, v.event(order, domain.OrderEventFilled, px, v.lastTime[order.Symbol]))
		v.logger.Debug("market order filled",
			slog.String("order_id", order.ID),
			slog.String("side", string(order.Side)),
			slog.String("price", px.String()),
		)
	case domain.OrderKindStop, domain.OrderKindLimit:
		if !order.Price.IsPositive() {
			return fmt.Errorf("paper venue: %s order without price: %w", order.Kind, domain.ErrOrderRejected)
		}
		if _, exists := v.book.Get(order.ID); exists {
			return fmt.Errorf("paper venue: duplicate order %s: %w", order.ID, domain.ErrOrderRejected)
		}
		order.Status = domain.OrderStatusOpen
		v.book.Add(order)
	default:
		return fmt.Errorf("paper venue: unknown kind %q: %w", order.Kind, domain.ErrOrderRejected)
	}
	return nil
}

// Modify implements Venue.
func (v *PaperVenue) Modify(_ context.Context, orderID string, price decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.book.Get(orderID)
	if !ok {
		return fmt.Errorf("paper venue: modify %s: %w", orderID, domain.ErrOrderNotActive)
	}
	o.Price = price
	return nil
}

// Cancel implements Venue.
func (v *PaperVenue) Cancel(_ context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.book.Remove(orderID)
	if !ok {
		return fmt.Errorf("paper venue: cancel %s: %w", orderID, domain.ErrOrderNotActive)
	}
	v.pending = append(v.pending, v.event(o, domain.OrderEventCancelled, decimal.Zero, v.lastTime[o.Symbol]))
	return nil
}

// OnBar matches resting orders of bar.Symbol against the bar, records the
// close as the market price and returns every event produced since the last
// call, in order.
func (v *PaperVenue) OnBar(bar domain.Bar) []domain.OrderEvent {
	v.mu.Lock()
	defer v.mu.Unlock()

	open := decimal.NewFromFloat(bar.Open)
	high := decimal.NewFromFloat(bar.High)
	low := decimal.NewFromFloat(bar.Low)

	for _, o := range v.book.Symbol(bar.Symbol) {
		if _, still := v.book.Get(o.ID); !still {
			continue // cancelled by an earlier fill in this bar
		}
		px, hit := triggerPrice(o, open, high, low)
		if !hit {
			continue
		}
		siblings := v.book.Siblings(o.ID)
		v.book.Remove(o.ID)
		v.pending = append(v.pending, v.event(o, domain.OrderEventFilled, px, bar.Time))
		v.logger.Info("resting order filled",
			slog.String("order_id", o.ID),
			slog.String("label", o.Label),
			slog.String("price", px.String()),
		)
		for _, sib := range siblings {
			v.book.Remove(sib.ID)
			v.pending = append(v.pending, v.event(sib, domain.OrderEventCancelled, decimal.Zero, bar.Time))
		}
	}

	v.lastClose[bar.Symbol] = decimal.NewFromFloat(bar.Close)
	v.lastTime[bar.Symbol] = bar.Time

	out := v.pending
	v.pending = nil
	return out
}

// Drain returns and clears queued events without a new bar.
func (v *PaperVenue) Drain() []domain.OrderEvent {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.pending
	v.pending = nil
	return out
}

// Resting returns the number of resting orders.
func (v *PaperVenue) Resting() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.book.Len()
}

// triggerPrice decides whether o trades inside the bar and at what price.
// A bar that opens beyond the order price fills at the open.
func triggerPrice(o domain.Order, open, high, low decimal.Decimal) (decimal.Decimal, bool) {
	switch {
	case o.Kind == domain.OrderKindStop && o.Side == domain.OrderSideSell:
		if low.LessThanOrEqual(o.Price) {
			return decimal.Min(o.Price, open), true
		}
	case o.Kind == domain.OrderKindStop && o.Side == domain.OrderSideBuy:
		if high.GreaterThanOrEqual(o.Price) {
			return decimal.Max(o.Price, open), true
		}
	case o.Kind == domain.OrderKindLimit && o.Side == domain.OrderSideSell:
		if high.GreaterThanOrEqual(o.Price) {
			return decimal.Max(o.Price, open), true
		}
	case o.Kind == domain.OrderKindLimit && o.Side == domain.OrderSideBuy:
		if low.LessThanOrEqual(o.Price) {
			return decimal.Min(o.Price, open), true
		}
	}
	return decimal.Zero, false
}

func (v *PaperVenue) event(o domain.Order, kind domain.OrderEventKind, px decimal.Decimal, at time.Time) domain.OrderEvent {
	return domain.OrderEvent{
		OrderID: o.ID,
		OcoID:   o.OcoID,
		Symbol:  o.Symbol,
		Kind:    kind,
		Price:   px,
		Time:    at,
	}
}
