package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
	"github.com/alanyoungcy/stochtrader/internal/executor"
)

// RetryPolicy bounds how often a transient venue failure is retried.
type RetryPolicy struct {
	MaxAttempts int
	Min         time.Duration
	Max         time.Duration
	Factor      float64
}

// DefaultRetryPolicy mirrors the [router] defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2}
}

// OrderService routes manager orders to a venue. Every accepted call is
// journaled, published on the "orders" channel, and audited. Stores and bus
// may be nil.
type OrderService struct {
	venue  executor.Venue
	orders domain.OrderStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	policy RetryPolicy
	logger *slog.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(
	venue executor.Venue,
	orders domain.OrderStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	policy RetryPolicy,
	logger *slog.Logger,
) *OrderService {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &OrderService{
		venue:  venue,
		orders: orders,
		bus:    bus,
		audit:  audit,
		policy: policy,
		logger: logger.With(slog.String("component", "order_service")),
	}
}

// Submit sends order to the venue and returns its handle.
func (s *OrderService) Submit(ctx context.Context, order domain.Order) (domain.OrderHandle, error) {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Status = domain.OrderStatusPending

	if s.orders != nil {
		if err := s.orders.Create(ctx, order); err != nil {
			s.logger.WarnContext(ctx, "journal create failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	err := s.retry(ctx, "submit", func(ctx context.Context) error {
		return s.venue.Submit(ctx, order)
	})
	if err != nil {
		s.setStatus(ctx, order.ID, domain.OrderStatusRejected)
		s.record(ctx, "order_rejected", map[string]any{
			"order_id": order.ID,
			"symbol":   order.Symbol,
			"label":    order.Label,
			"error":    err.Error(),
		})
		return "", fmt.Errorf("order_service: submit %q: %w", order.Label, err)
	}

	s.setStatus(ctx, order.ID, domain.OrderStatusOpen)
	s.record(ctx, "order_placed", map[string]any{
		"order_id": order.ID,
		"symbol":   order.Symbol,
		"side":     string(order.Side),
		"kind":     string(order.Kind),
		"price":    order.Price.String(),
		"label":    order.Label,
		"oco_id":   order.OcoID,
	})
	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("label", order.Label),
		slog.String("kind", string(order.Kind)),
		slog.String("price", order.Price.String()),
	)
	return domain.OrderHandle(order.ID), nil
}

// Modify moves a resting order to price.
func (s *OrderService) Modify(ctx context.Context, handle domain.OrderHandle, price decimal.Decimal) error {
	id := string(handle)
	err := s.retry(ctx, "modify", func(ctx context.Context) error {
		return s.venue.Modify(ctx, id, price)
	})
	if err != nil {
		return fmt.Errorf("order_service: modify %q: %w", id, err)
	}
	if s.orders != nil {
		if err := s.orders.UpdatePrice(ctx, id, price); err != nil {
			s.logger.WarnContext(ctx, "journal price update failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	s.record(ctx, "order_modified", map[string]any{
		"order_id": id,
		"price":    price.String(),
	})
	return nil
}

// Cancel requests cancellation. The journal status changes when the venue
// confirms through RecordEvent.
func (s *OrderService) Cancel(ctx context.Context, handle domain.OrderHandle) error {
	id := string(handle)
	err := s.retry(ctx, "cancel", func(ctx context.Context) error {
		return s.venue.Cancel(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("order_service: cancel %q: %w", id, err)
	}
	s.record(ctx, "order_cancel_requested", map[string]any{"order_id": id})
	return nil
}

// adopter is implemented by venues that must learn about orders submitted
// by an earlier process before they can cancel them.
type adopter interface {
	Adopt(order domain.Order)
}

// CancelStale cancels the orders an earlier process left pending or resting
// for symbol and marks them cancelled in the journal. A manager always
// starts flat, so these orders have no owner.
func (s *OrderService) CancelStale(ctx context.Context, symbol string) error {
	if s.orders == nil {
		return nil
	}
	open, err := s.orders.ListOpen(ctx, symbol)
	if err != nil {
		return fmt.Errorf("order_service: list open %s: %w", symbol, err)
	}
	for _, o := range open {
		if a, ok := s.venue.(adopter); ok {
			a.Adopt(o)
		}
		err := s.retry(ctx, "cancel", func(ctx context.Context) error {
			return s.venue.Cancel(ctx, o.ID)
		})
		if err != nil && !errors.Is(err, domain.ErrOrderNotActive) {
			return fmt.Errorf("order_service: cancel stale %q: %w", o.ID, err)
		}
		s.setStatus(ctx, o.ID, domain.OrderStatusCancelled)
		s.record(ctx, "order_stale_cancelled", map[string]any{"order_id": o.ID, "symbol": symbol})
	}
	if len(open) > 0 {
		s.logger.InfoContext(ctx, "cancelled stale orders", slog.String("symbol", symbol), slog.Int("count", len(open)))
	}
	return nil
}

// RecordEvent journals an asynchronous venue notification.
func (s *OrderService) RecordEvent(ctx context.Context, ev domain.OrderEvent) {
	switch ev.Kind {
	case domain.OrderEventFilled:
		s.setStatus(ctx, ev.OrderID, domain.OrderStatusFilled)
	case domain.OrderEventCancelled:
		s.setStatus(ctx, ev.OrderID, domain.OrderStatusCancelled)
	case domain.OrderEventRejected:
		s.setStatus(ctx, ev.OrderID, domain.OrderStatusRejected)
	}
	s.record(ctx, "order_"+string(ev.Kind), map[string]any{
		"order_id": ev.OrderID,
		"symbol":   ev.Symbol,
		"price":    ev.Price.String(),
		"reason":   ev.Reason,
	})
}

// retry runs fn until it succeeds, fails permanently, or the attempt budget
// is spent. Only domain.ErrTransient is retried.
func (s *OrderService) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	b := &backoff.Backoff{Min: s.policy.Min, Max: s.policy.Max, Factor: s.policy.Factor}
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || !errors.Is(err, domain.ErrTransient) || attempt >= s.policy.MaxAttempts {
			return err
		}
		wait := b.Duration()
		s.logger.WarnContext(ctx, "transient venue error, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(ctx.Err(), err)
		case <-t.C:
		}
	}
}

func (s *OrderService) setStatus(ctx context.Context, id string, status domain.OrderStatus) {
	if s.orders == nil {
		return
	}
	if err := s.orders.UpdateStatus(ctx, id, status); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "journal status update failed",
			slog.String("order_id", id),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}

// record publishes on the "orders" channel and appends an audit entry.
func (s *OrderService) record(ctx context.Context, event string, detail map[string]any) {
	if s.bus != nil {
		payload := make(map[string]any, len(detail)+1)
		for k, v := range detail {
			payload[k] = v
		}
		payload["event"] = event
		evt, _ := json.Marshal(payload)
		if err := s.bus.Publish(ctx, "orders", evt); err != nil {
			s.logger.WarnContext(ctx, "publish event failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
