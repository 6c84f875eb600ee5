package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// OrderRouter is the order-management collaborator. Retries belong to the
// implementation; the manager never retries within a bar.
type OrderRouter interface {
	Submit(ctx context.Context, order domain.Order) (domain.OrderHandle, error)
	Modify(ctx context.Context, handle domain.OrderHandle, price decimal.Decimal) error
	Cancel(ctx context.Context, handle domain.OrderHandle) error
}

// EventSink receives position lifecycle events.
type EventSink interface {
	OnPositionEvent(ctx context.Context, ev domain.PositionEvent)
}

// Order labels.
const (
	LabelLongEntry    = "Long Entry"
	LabelShortEntry   = "Short Entry"
	LabelInitialStop  = "Initial Stop"
	LabelTrailingStop = "Trailing Stop"
	LabelProfitTarget = "Profit Target"
	LabelExitLong     = "Exit Long"
	LabelExitShort    = "Exit Short"
)

// exitLeg is one resting exit order and the venue handle for it.
type exitLeg struct {
	order  domain.Order
	handle domain.OrderHandle
	live   bool
}

// exitPair is the OCO pair of an open position.
type exitPair struct {
	id     string
	stop   exitLeg
	profit exitLeg
}

func (p *exitPair) oco() domain.OcoPair {
	return domain.OcoPair{ID: p.id, Stop: p.stop.order, Profit: p.profit.order}
}

// closingOrder remembers the last flattening market order so an
// asynchronous rejection can restore the position.
type closingOrder struct {
	orderID    string
	dir        domain.Direction
	positionID string
	entry      decimal.Decimal
	reason     string
}

// Manager owns the position, the OCO exit pair and the trailing state for
// one instrument. It is not safe for concurrent use; the engine serialises
// every call per instrument.
type Manager struct {
	symbol string
	params Params
	router OrderRouter
	sink   EventSink
	logger *slog.Logger

	dir          domain.Direction
	positionID   string
	entryOrderID string
	entry        decimal.Decimal
	trail        TrailingState
	pair         *exitPair
	// stopPrice and stopLabel are the last stop the venue accepted. They
	// outlive the pair so re-placed exits never give back trailing progress.
	stopPrice    decimal.Decimal
	stopLabel    string
	exitsMissing bool
	flattenDue   string
	closing      *closingOrder
	lastBar      time.Time
}

// NewManager creates a flat Manager. sink may be nil.
func NewManager(symbol string, params Params, router OrderRouter, sink EventSink, logger *slog.Logger) *Manager {
	return &Manager{
		symbol: symbol,
		params: params,
		router: router,
		sink:   sink,
		logger: logger.With(slog.String("component", "position_manager"), slog.String("symbol", symbol)),
	}
}

// Position returns the signed position: -1, 0 or +1.
func (m *Manager) Position() domain.Direction { return m.dir }

// Trailing returns the trailing state of the open position.
func (m *Manager) Trailing() (TrailingState, bool) {
	return m.trail, m.dir != domain.Flat
}

// Exits returns the current OCO pair.
func (m *Manager) Exits() (domain.OcoPair, bool) {
	if m.pair == nil {
		return domain.OcoPair{}, false
	}
	return m.pair.oco(), true
}

// Snapshot returns a copy of the manager state.
func (m *Manager) Snapshot() domain.PositionSnapshot {
	snap := domain.PositionSnapshot{
		Symbol:       m.symbol,
		Direction:    m.dir,
		PositionID:   m.positionID,
		ExitsMissing: m.exitsMissing,
		ExitPending:  m.flattenDue != "",
		LastBar:      m.lastBar,
	}
	if m.dir != domain.Flat {
		snap.EntryPrice = m.entry
		snap.Acceleration = m.trail.Acceleration
		snap.FurthestClose = m.trail.FurthestClose
	}
	if m.pair != nil {
		snap.StopPrice = m.pair.stop.order.Price
		snap.ProfitPrice = m.pair.profit.order.Price
	}
	return snap
}

// Enter opens a position in dir at the bar close and places the OCO exits.
// It is a no-op unless the manager is flat.
func (m *Manager) Enter(ctx context.Context, dir domain.Direction, bar domain.Bar) error {
	if dir == domain.Flat {
		return nil
	}
	if m.dir != domain.Flat {
		m.logger.Debug("entry ignored while in position",
			slog.String("position", m.dir.String()),
			slog.String("signal", dir.String()),
		)
		return nil
	}
	m.lastBar = bar.Time
	closePrice := decimal.NewFromFloat(bar.Close)

	label := LabelLongEntry
	if dir == domain.Short {
		label = LabelShortEntry
	}
	entry := m.newOrder(dir.EntrySide(), domain.OrderKindMarket, decimal.Zero, label, "")
	if _, err := m.router.Submit(ctx, entry); err != nil {
		return fmt.Errorf("strategy: submit %s entry: %w", dir, err)
	}

	m.dir = dir
	m.positionID = uuid.NewString()
	m.entryOrderID = entry.ID
	m.entry = closePrice
	m.trail = NewTrailingState(m.params.AccelerationSeed, closePrice)
	m.pair = nil
	m.stopPrice = decimal.Zero
	m.stopLabel = ""
	m.closing = nil
	m.logger.Info("position opened",
		slog.String("position_id", m.positionID),
		slog.String("direction", dir.String()),
		slog.String("price", closePrice.String()),
	)
	m.emit(ctx, domain.PositionEvent{
		Kind:         domain.PositionOpened,
		Price:        closePrice,
		Acceleration: m.trail.Acceleration,
	}, bar.Time)

	if err := m.placeExits(ctx, bar.Time); err != nil {
		m.exitsMissing = true
		return err
	}
	return nil
}

// exitPrices computes the profit price from the entry price. The stop is
// the last accepted stop, or the initial stop before one was accepted.
func (m *Manager) exitPrices() (stop decimal.Decimal, stopLabel string, profit decimal.Decimal) {
	stopMargin, profitMargin := m.params.StopMargin(), m.params.ProfitMargin()
	if m.dir == domain.Long {
		stop, profit = m.entry.Sub(stopMargin), m.entry.Add(profitMargin)
	} else {
		stop, profit = m.entry.Add(stopMargin), m.entry.Sub(profitMargin)
	}
	if m.stopLabel != "" {
		return m.stopPrice, m.stopLabel, profit
	}
	return stop, LabelInitialStop, profit
}

// placeExits submits the stop and profit legs as one OCO group. When the
// second leg fails the first is cancelled so the pair is all or nothing.
func (m *Manager) placeExits(ctx context.Context, barTime time.Time) error {
	stopPrice, stopLabel, profitPrice := m.exitPrices()
	ocoID := uuid.NewString()
	side := m.dir.ExitSide()

	stop := m.newOrder(side, domain.OrderKindStop, stopPrice, stopLabel, ocoID)
	stopHandle, err := m.router.Submit(ctx, stop)
	if err != nil {
		return fmt.Errorf("strategy: submit stop: %w", err)
	}
	profit := m.newOrder(side, domain.OrderKindLimit, profitPrice, LabelProfitTarget, ocoID)
	profitHandle, err := m.router.Submit(ctx, profit)
	if err != nil {
		if cerr := m.router.Cancel(ctx, stopHandle); cerr != nil && !errors.Is(cerr, domain.ErrOrderNotActive) {
			m.logger.Warn("cancel orphaned stop failed", slog.String("order_id", stop.ID), slog.String("error", cerr.Error()))
		}
		return fmt.Errorf("strategy: submit profit target: %w", err)
	}

	m.pair = &exitPair{
		id:     ocoID,
		stop:   exitLeg{order: stop, handle: stopHandle, live: true},
		profit: exitLeg{order: profit, handle: profitHandle, live: true},
	}
	m.stopPrice, m.stopLabel = stopPrice, stopLabel
	m.exitsMissing = false
	m.emit(ctx, domain.PositionEvent{
		Kind:         domain.PositionExitsPlaced,
		Price:        m.entry,
		StopPrice:    stopPrice,
		ProfitPrice:  profitPrice,
		Acceleration: m.trail.Acceleration,
	}, barTime)
	return nil
}

// OnBar manages an open position for one new bar: a pending flatten is
// retried first, then missing exits are re-placed, otherwise the trailing
// stop is evaluated against the close. Flat managers do nothing.
func (m *Manager) OnBar(ctx context.Context, bar domain.Bar) error {
	m.lastBar = bar.Time
	if m.dir == domain.Flat {
		return nil
	}
	if m.flattenDue != "" {
		return m.flatten(ctx, m.flattenDue, decimal.NewFromFloat(bar.Close), bar.Time)
	}
	if m.exitsMissing || m.pair == nil {
		if err := m.placeExits(ctx, bar.Time); err != nil {
			m.exitsMissing = true
			return err
		}
		return nil
	}

	closePrice := decimal.NewFromFloat(bar.Close)
	res := Trail(m.dir, m.trail, m.pair.stop.order.Price, closePrice)
	switch res.Action {
	case TrailMove:
		if err := m.router.Modify(ctx, m.pair.stop.handle, res.Stop); err != nil {
			return fmt.Errorf("strategy: modify trailing stop: %w", err)
		}
		prev := m.pair.stop.order.Price
		m.trail = res.State
		m.pair.stop.order.Price = res.Stop
		m.pair.stop.order.Label = LabelTrailingStop
		m.stopPrice, m.stopLabel = res.Stop, LabelTrailingStop
		m.logger.Info("trailing stop moved",
			slog.String("from", prev.String()),
			slog.String("to", res.Stop.String()),
			slog.String("acceleration", res.State.Acceleration.String()),
		)
		m.emit(ctx, domain.PositionEvent{
			Kind:         domain.PositionStopMoved,
			Price:        closePrice,
			StopPrice:    res.Stop,
			ProfitPrice:  m.pair.profit.order.Price,
			Acceleration: res.State.Acceleration,
		}, bar.Time)
	case TrailFlatten:
		m.trail = res.State
		return m.flatten(ctx, "trailing stop crossed market", closePrice, bar.Time)
	}
	return nil
}

// ClosePosition cancels both exits and flattens with a market order. It is
// idempotent: a flat manager returns nil without submitting anything.
func (m *Manager) ClosePosition(ctx context.Context, reason string, price decimal.Decimal, barTime time.Time) error {
	if m.dir == domain.Flat {
		return nil
	}
	m.lastBar = barTime
	return m.flatten(ctx, reason, price, barTime)
}

func (m *Manager) flatten(ctx context.Context, reason string, price decimal.Decimal, barTime time.Time) error {
	if m.pair != nil {
		for _, leg := range []*exitLeg{&m.pair.stop, &m.pair.profit} {
			if !leg.live {
				continue
			}
			if err := m.router.Cancel(ctx, leg.handle); err != nil && !errors.Is(err, domain.ErrOrderNotActive) {
				m.flattenDue = reason
				return fmt.Errorf("strategy: cancel %s: %w", leg.order.Label, err)
			}
			leg.live = false
		}
	}

	label := LabelExitLong
	if m.dir == domain.Short {
		label = LabelExitShort
	}
	exit := m.newOrder(m.dir.ExitSide(), domain.OrderKindMarket, decimal.Zero, label, "")
	if _, err := m.router.Submit(ctx, exit); err != nil {
		m.flattenDue = reason
		return fmt.Errorf("strategy: submit flatten: %w", err)
	}
	m.closing = &closingOrder{
		orderID:    exit.ID,
		dir:        m.dir,
		positionID: m.positionID,
		entry:      m.entry,
		reason:     reason,
	}
	m.markFlat(ctx, reason, price, barTime)
	return nil
}

// HandleOrderEvent applies an asynchronous venue notification.
func (m *Manager) HandleOrderEvent(ctx context.Context, ev domain.OrderEvent) {
	switch {
	case m.pair != nil && m.pair.oco().Has(ev.OrderID):
		m.handleExitEvent(ctx, ev)

	case ev.OrderID == m.entryOrderID && m.dir != domain.Flat:
		if ev.Kind == domain.OrderEventRejected {
			m.logger.Warn("entry rejected by venue", slog.String("order_id", ev.OrderID), slog.String("reason", ev.Reason))
			m.cancelLegs(ctx)
			m.closing = nil
			m.markFlat(ctx, "entry rejected", m.entry, ev.Time)
			return
		}
		if ev.Kind == domain.OrderEventFilled {
			m.logger.Debug("entry filled", slog.String("order_id", ev.OrderID), slog.String("price", ev.Price.String()))
		}

	case m.closing != nil && ev.OrderID == m.closing.orderID:
		c := m.closing
		m.closing = nil
		if ev.Kind != domain.OrderEventRejected {
			return
		}
		if m.dir != domain.Flat {
			m.logger.Error("flatten rejected after a new entry", slog.String("order_id", ev.OrderID))
			return
		}
		m.logger.Warn("flatten rejected, position restored",
			slog.String("position_id", c.positionID),
			slog.String("reason", ev.Reason),
		)
		m.dir = c.dir
		m.positionID = c.positionID
		m.entry = c.entry
		m.trail = NewTrailingState(m.params.AccelerationSeed, c.entry)
		m.flattenDue = c.reason

	case ev.Kind == domain.OrderEventFilled:
		// A leg can fill at the venue after the manager has already flattened.
		m.logger.Warn("fill for untracked order",
			slog.String("order_id", ev.OrderID),
			slog.String("oco_id", ev.OcoID),
			slog.String("price", ev.Price.String()),
		)
	}
}

func (m *Manager) handleExitEvent(ctx context.Context, ev domain.OrderEvent) {
	stopHit := ev.OrderID == m.pair.stop.order.ID
	leg, sibling := &m.pair.stop, &m.pair.profit
	if !stopHit {
		leg, sibling = &m.pair.profit, &m.pair.stop
	}

	switch ev.Kind {
	case domain.OrderEventFilled:
		leg.live = false
		sibling.live = false
		reason := "profit target"
		if stopHit {
			reason = "stop"
		}
		m.markFlat(ctx, reason, ev.Price, ev.Time)

	case domain.OrderEventCancelled, domain.OrderEventRejected:
		if !leg.live {
			return
		}
		leg.live = false
		m.logger.Warn("exit leg lost, re-placing on next bar",
			slog.String("order_id", ev.OrderID),
			slog.String("label", leg.order.Label),
			slog.String("event", string(ev.Kind)),
		)
		m.cancelLegs(ctx)
		m.pair = nil
		m.exitsMissing = true
	}
}

// cancelLegs cancels live exit legs, logging failures.
func (m *Manager) cancelLegs(ctx context.Context) {
	if m.pair == nil {
		return
	}
	for _, leg := range []*exitLeg{&m.pair.stop, &m.pair.profit} {
		if !leg.live {
			continue
		}
		if err := m.router.Cancel(ctx, leg.handle); err != nil && !errors.Is(err, domain.ErrOrderNotActive) {
			m.logger.Warn("cancel exit leg failed", slog.String("order_id", leg.order.ID), slog.String("error", err.Error()))
			continue
		}
		leg.live = false
	}
}

func (m *Manager) markFlat(ctx context.Context, reason string, price decimal.Decimal, barTime time.Time) {
	ev := domain.PositionEvent{
		Kind:         domain.PositionClosed,
		Price:        price,
		Acceleration: m.trail.Acceleration,
		Reason:       reason,
	}
	if m.pair != nil {
		ev.StopPrice = m.pair.stop.order.Price
		ev.ProfitPrice = m.pair.profit.order.Price
	}
	m.logger.Info("position closed",
		slog.String("position_id", m.positionID),
		slog.String("direction", m.dir.String()),
		slog.String("reason", reason),
		slog.String("price", price.String()),
	)
	m.emit(ctx, ev, barTime)

	m.dir = domain.Flat
	m.positionID = ""
	m.entryOrderID = ""
	m.entry = decimal.Zero
	m.trail = TrailingState{}
	m.pair = nil
	m.stopPrice = decimal.Zero
	m.stopLabel = ""
	m.exitsMissing = false
	m.flattenDue = ""
}

func (m *Manager) newOrder(side domain.OrderSide, kind domain.OrderKind, price decimal.Decimal, label, ocoID string) domain.Order {
	return domain.Order{
		ID:        uuid.NewString(),
		Symbol:    m.symbol,
		Side:      side,
		Kind:      kind,
		Quantity:  1,
		Price:     price,
		Label:     label,
		OcoID:     ocoID,
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// emit fills the identity fields of ev and hands it to the sink.
func (m *Manager) emit(ctx context.Context, ev domain.PositionEvent, barTime time.Time) {
	if m.sink == nil {
		return
	}
	ev.PositionID = m.positionID
	ev.Symbol = m.symbol
	ev.Direction = m.dir
	ev.BarTime = barTime
	ev.CreatedAt = time.Now().UTC()
	m.sink.OnPositionEvent(ctx, ev)
}
