package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

const (
	inboxSize        = 256
	shutdownCloseTTL = 10 * time.Second
)

type commandKind int

const (
	cmdBar commandKind = iota
	cmdOrderEvent
	cmdClose
)

// command is one unit of work for a handler goroutine. done, when set,
// receives the handler's result.
type command struct {
	kind   commandKind
	bar    domain.Bar
	event  domain.OrderEvent
	reason string
	done   chan error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCloseOnShutdown flattens every position when Run's context ends.
func WithCloseOnShutdown(v bool) EngineOption {
	return func(e *Engine) { e.closeOnShutdown = v }
}

// WithRecentLimit bounds the number of position events kept in memory.
func WithRecentLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.recentLimit = n
		}
	}
}

// Engine drives the registered handlers. Each handler gets its own goroutine
// fed by an inbox, so bars, order events and close requests for one
// instrument are processed strictly one at a time and in arrival order.
// The Engine is also the EventSink handed to the handlers: it keeps recent
// position events and forwards them downstream.
type Engine struct {
	registry        *Registry
	downstream      EventSink
	logger          *slog.Logger
	closeOnShutdown bool

	mu      sync.Mutex
	inboxes map[string]chan command
	stopped chan struct{}

	recentEvents []domain.PositionEvent
	recentLimit  int
}

// NewEngine creates an Engine over registry. downstream may be nil.
func NewEngine(registry *Registry, downstream EventSink, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:    registry,
		downstream:  downstream,
		logger:      logger.With(slog.String("component", "strategy_engine")),
		inboxes:     make(map[string]chan command),
		stopped:     make(chan struct{}),
		recentLimit: 500,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetDownstream replaces the sink position events are forwarded to.
func (e *Engine) SetDownstream(sink EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.downstream = sink
}

// OnPositionEvent implements EventSink.
func (e *Engine) OnPositionEvent(ctx context.Context, ev domain.PositionEvent) {
	e.mu.Lock()
	e.recentEvents = append(e.recentEvents, ev)
	if overflow := len(e.recentEvents) - e.recentLimit; overflow > 0 {
		e.recentEvents = append([]domain.PositionEvent(nil), e.recentEvents[overflow:]...)
	}
	downstream := e.downstream
	e.mu.Unlock()

	if downstream != nil {
		downstream.OnPositionEvent(ctx, ev)
	}
}

// RecentEvents returns up to limit most recent position events, newest first.
func (e *Engine) RecentEvents(limit int) []domain.PositionEvent {
	if limit <= 0 {
		limit = 20
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.recentEvents)
	if limit > n {
		limit = n
	}
	out := make([]domain.PositionEvent, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.recentEvents[i])
	}
	return out
}

// Instruments lists the registered handlers.
func (e *Engine) Instruments() []InstrumentInfo {
	return e.registry.ListInfo()
}

// Snapshots returns the position snapshot of every handler, sorted by symbol.
func (e *Engine) Snapshots() []domain.PositionSnapshot {
	symbols := e.registry.List()
	out := make([]domain.PositionSnapshot, 0, len(symbols))
	for _, sym := range symbols {
		h, err := e.registry.Get(sym)
		if err != nil {
			continue
		}
		out = append(out, h.Snapshot())
	}
	return out
}

func (e *Engine) inbox(symbol string) (chan command, error) {
	if _, err := e.registry.Get(symbol); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.inboxes[symbol]
	if !ok {
		ch = make(chan command, inboxSize)
		e.inboxes[symbol] = ch
	}
	return ch, nil
}

func (e *Engine) send(ctx context.Context, symbol string, cmd command) error {
	ch, err := e.inbox(symbol)
	if err != nil {
		return err
	}
	select {
	case ch <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return errors.New("strategy engine stopped")
	}
}

// HandleBar queues bar for its instrument. It blocks while the inbox is full
// so bars are never dropped.
func (e *Engine) HandleBar(ctx context.Context, bar domain.Bar) error {
	return e.send(ctx, bar.Symbol, command{kind: cmdBar, bar: bar})
}

// ProcessBar hands bar to its instrument and waits until the handler has
// evaluated it, so orders it submits rest before the next bar is matched.
// Handler errors are logged, not returned.
func (e *Engine) ProcessBar(ctx context.Context, bar domain.Bar) error {
	done := make(chan error, 1)
	if err := e.send(ctx, bar.Symbol, command{kind: cmdBar, bar: bar, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return errors.New("strategy engine stopped")
	}
}

// HandleOrderEvent queues a venue notification for its instrument.
func (e *Engine) HandleOrderEvent(ctx context.Context, ev domain.OrderEvent) error {
	return e.send(ctx, ev.Symbol, command{kind: cmdOrderEvent, event: ev})
}

// ClosePosition flattens symbol and waits for the handler's result. Closing
// a flat instrument succeeds without submitting orders.
func (e *Engine) ClosePosition(ctx context.Context, symbol, reason string) error {
	done := make(chan error, 1)
	if err := e.send(ctx, symbol, command{kind: cmdClose, reason: reason, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return errors.New("strategy engine stopped")
	}
}

// CloseAll flattens every instrument and joins the failures.
func (e *Engine) CloseAll(ctx context.Context, reason string) error {
	var errs []error
	for _, sym := range e.registry.List() {
		if err := e.ClosePosition(ctx, sym, reason); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
		}
	}
	return errors.Join(errs...)
}

// Run initialises every registered handler and starts one goroutine per
// handler. It blocks until ctx is cancelled or a handler fails to
// initialise.
func (e *Engine) Run(ctx context.Context) error {
	symbols := e.registry.List()
	e.logger.Info("strategy engine started", slog.Any("instruments", symbols))
	defer func() {
		close(e.stopped)
		e.logger.Info("strategy engine stopped")
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range symbols {
		h, err := e.registry.Get(sym)
		if err != nil {
			return err
		}
		ch, err := e.inbox(sym)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return e.runHandler(gctx, h, ch)
		})
	}
	return g.Wait()
}

func (e *Engine) runHandler(ctx context.Context, h BarHandler, inbox <-chan command) error {
	if err := h.OnInitialize(ctx); err != nil {
		e.logger.Error("handler init failed", slog.String("symbol", h.Symbol()), slog.String("error", err.Error()))
		return fmt.Errorf("strategy: init %s: %w", h.Symbol(), err)
	}
	for {
		select {
		case <-ctx.Done():
			if e.closeOnShutdown {
				e.closeOnExit(ctx, h)
			}
			return ctx.Err()
		case cmd := <-inbox:
			e.dispatch(ctx, h, cmd)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, h BarHandler, cmd command) {
	var err error
	switch cmd.kind {
	case cmdBar:
		err = h.OnNewBar(ctx, cmd.bar)
		if errors.Is(err, domain.ErrNotReady) {
			e.logger.Debug("warming up", slog.String("symbol", h.Symbol()), slog.Time("bar_time", cmd.bar.Time))
		} else if err != nil {
			e.logger.Warn("bar handling failed",
				slog.String("symbol", h.Symbol()),
				slog.Time("bar_time", cmd.bar.Time),
				slog.String("error", err.Error()),
			)
		}
	case cmdOrderEvent:
		err = h.OnOrderEvent(ctx, cmd.event)
		if err != nil {
			e.logger.Warn("order event handling failed",
				slog.String("symbol", h.Symbol()),
				slog.String("order_id", cmd.event.OrderID),
				slog.String("error", err.Error()),
			)
		}
	case cmdClose:
		err = h.ClosePosition(ctx, cmd.reason)
		if err != nil {
			e.logger.Warn("close position failed", slog.String("symbol", h.Symbol()), slog.String("error", err.Error()))
		}
	}
	if cmd.done != nil {
		cmd.done <- err
	}
}

// closeOnExit flattens h with a fresh deadline after the run context ended.
func (e *Engine) closeOnExit(ctx context.Context, h BarHandler) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownCloseTTL)
	defer cancel()
	if err := h.ClosePosition(cctx, "shutdown"); err != nil {
		e.logger.Error("close on shutdown failed", slog.String("symbol", h.Symbol()), slog.String("error", err.Error()))
	}
}
