package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// Command actions written to the venue command stream.
const (
	ActionSubmit = "submit"
	ActionModify = "modify"
	ActionCancel = "cancel"
)

// VenueCommand is the JSON payload appended to the command stream.
type VenueCommand struct {
	Action  string          `json:"action"`
	OrderID string          `json:"order_id"`
	Order   *domain.Order   `json:"order,omitempty"`
	Price   decimal.Decimal `json:"price,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// BusVenue hands orders to an external execution platform over the signal
// bus: commands go to a durable stream per instrument, and order events come
// back on a pub/sub channel per instrument.
type BusVenue struct {
	bus           domain.SignalBus
	commandPrefix string
	eventPrefix   string
	dedup         *Dedup
	logger        *slog.Logger

	mu      sync.Mutex
	symbols map[string]string // order id -> symbol
}

// NewBusVenue creates a BusVenue.
func NewBusVenue(bus domain.SignalBus, commandPrefix, eventPrefix string, logger *slog.Logger) *BusVenue {
	return &BusVenue{
		bus:           bus,
		commandPrefix: commandPrefix,
		eventPrefix:   eventPrefix,
		dedup:         NewDedup(10 * time.Minute),
		logger:        logger.With(slog.String("component", "bus_venue")),
		symbols:       make(map[string]string),
	}
}

// Submit implements Venue.
func (v *BusVenue) Submit(ctx context.Context, order domain.Order) error {
	v.mu.Lock()
	v.symbols[order.ID] = order.Symbol
	v.mu.Unlock()
	return v.send(ctx, order.Symbol, VenueCommand{Action: ActionSubmit, OrderID: order.ID, Order: &order})
}

// Modify implements Venue.
func (v *BusVenue) Modify(ctx context.Context, orderID string, price decimal.Decimal) error {
	symbol, err := v.symbolOf(orderID)
	if err != nil {
		return err
	}
	return v.send(ctx, symbol, VenueCommand{Action: ActionModify, OrderID: orderID, Price: price})
}

// Cancel implements Venue.
func (v *BusVenue) Cancel(ctx context.Context, orderID string) error {
	symbol, err := v.symbolOf(orderID)
	if err != nil {
		return err
	}
	return v.send(ctx, symbol, VenueCommand{Action: ActionCancel, OrderID: orderID})
}

// Adopt tracks an order submitted by an earlier process so it can be
// modified or cancelled.
func (v *BusVenue) Adopt(order domain.Order) {
	v.mu.Lock()
	v.symbols[order.ID] = order.Symbol
	v.mu.Unlock()
}

func (v *BusVenue) symbolOf(orderID string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	symbol, ok := v.symbols[orderID]
	if !ok {
		return "", fmt.Errorf("bus venue: order %s: %w", orderID, domain.ErrOrderNotActive)
	}
	return symbol, nil
}

func (v *BusVenue) send(ctx context.Context, symbol string, cmd VenueCommand) error {
	cmd.SentAt = time.Now().UTC()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("bus venue: marshal %s: %w", cmd.Action, err)
	}
	if err := v.bus.StreamAppend(ctx, v.commandPrefix+symbol, payload); err != nil {
		return fmt.Errorf("bus venue: %s %s: %w: %w", cmd.Action, cmd.OrderID, domain.ErrTransient, err)
	}
	return nil
}

// Listen subscribes to the event channel of every symbol and passes each
// decoded, de-duplicated event to handle. It blocks until ctx is done.
func (v *BusVenue) Listen(ctx context.Context, symbols []string, handle func(context.Context, domain.OrderEvent) error) error {
	merged := make(chan []byte, 64)
	var wg sync.WaitGroup
	for _, sym := range symbols {
		ch, err := v.bus.Subscribe(ctx, v.eventPrefix+sym)
		if err != nil {
			return fmt.Errorf("bus venue: subscribe %s: %w", sym, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range ch {
				select {
				case merged <- msg:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	v.logger.Info("listening for venue events", slog.Any("symbols", symbols))
	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cleanup.C:
			v.dedup.Cleanup()
		case msg, ok := <-merged:
			if !ok {
				return nil
			}
			var ev domain.OrderEvent
			if err := json.Unmarshal(msg, &ev); err != nil {
				v.logger.Warn("bad venue event", slog.String("error", err.Error()))
				continue
			}
			if v.dedup.IsDuplicate(ev.OrderID + ":" + string(ev.Kind)) {
				continue
			}
			v.forget(ev)
			if err := handle(ctx, ev); err != nil {
				v.logger.Warn("venue event not delivered",
					slog.String("order_id", ev.OrderID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// forget drops the symbol mapping; filled, cancelled and rejected are all
// final states.
func (v *BusVenue) forget(ev domain.OrderEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.symbols, ev.OrderID)
}
