package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stochtrader/internal/domain"
	"github.com/alanyoungcy/stochtrader/internal/executor"
	"github.com/alanyoungcy/stochtrader/internal/feed"
	"github.com/alanyoungcy/stochtrader/internal/server"
	"github.com/alanyoungcy/stochtrader/internal/server/handler"
	"github.com/alanyoungcy/stochtrader/internal/service"
	"github.com/alanyoungcy/stochtrader/internal/strategy"
)

const flushTimeout = 30 * time.Second

// runner is the assembled trading pipeline of one process.
type runner struct {
	engine *strategy.Engine
	events *service.EventService
	orders *service.OrderService
	feeder *feed.BarFeeder
	feed   interface{ Run(context.Context) error }
	// listen is set when fills arrive from an external venue.
	listen func(context.Context) error
}

// PaperMode matches orders against incoming bars in process.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running in paper mode")
	paper := executor.NewPaperVenue(a.logger)
	r, err := a.build(deps, paper, paper)
	if err != nil {
		return err
	}
	return a.serve(ctx, deps, r)
}

// LiveMode routes orders to the external venue over the signal bus and
// holds a per-instrument lock so a second process cannot trade the same
// symbols.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running in live mode")
	if deps.SignalBus == nil || deps.Locks == nil {
		return fmt.Errorf("app: live mode: %w", domain.ErrInvalidConfig)
	}

	lockCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lost := make(chan string, len(a.cfg.Instruments))
	for _, sym := range a.cfg.Symbols() {
		release, gone, err := deps.Locks.Hold(lockCtx, "instrument:"+sym, a.cfg.Redis.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: lock %s: %w", sym, err)
		}
		defer release()
		go func() {
			select {
			case <-gone:
				lost <- sym
			case <-lockCtx.Done():
			}
		}()
	}

	bus := executor.NewBusVenue(deps.SignalBus, a.cfg.Venue.CommandPrefix, a.cfg.Venue.EventPrefix, a.logger)
	r, err := a.build(deps, bus, nil)
	if err != nil {
		return err
	}
	symbols := a.cfg.Symbols()
	r.listen = func(ctx context.Context) error {
		return bus.Listen(ctx, symbols, r.feeder.DeliverEvent)
	}

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	go func() {
		select {
		case sym := <-lost:
			a.logger.Error("instrument lock lost", slog.String("symbol", sym))
			stop(fmt.Errorf("app: lock %s lost: %w", sym, domain.ErrLockHeld))
		case <-runCtx.Done():
		}
	}()

	err = a.serve(runCtx, deps, r)
	if cause := context.Cause(runCtx); cause != nil && ctx.Err() == nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}

// build assembles the engine, one StochADX handler per instrument, the
// order router and the bar feed. matcher may be nil when fills are
// delivered by the venue itself.
func (a *App) build(deps *Dependencies, venue executor.Venue, matcher feed.FillMatcher) (*runner, error) {
	var notifier service.PositionNotifier
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		notifier = deps.Notifier
	}
	events := service.NewEventService(service.EventServiceConfig{
		Bus:           deps.SignalBus,
		Positions:     deps.PositionStore,
		Audit:         deps.AuditStore,
		Notifier:      notifier,
		Journal:       deps.Journal,
		JournalPrefix: a.cfg.S3.JournalPrefix,
		Strategy:      "stoch_adx",
	}, a.logger)

	rc := a.cfg.Router
	policy := retryPolicy(rc.MaxAttempts, rc.MinBackoff.Duration, rc.MaxBackoff.Duration, rc.Factor)
	orders := service.NewOrderService(venue, deps.OrderStore, deps.SignalBus, deps.AuditStore, policy, a.logger)

	reg := strategy.NewRegistry()
	engine := strategy.NewEngine(reg, events, a.logger, strategy.WithCloseOnShutdown(a.cfg.CloseOnShutdown))
	for _, sym := range a.cfg.Symbols() {
		params, err := paramsFor(a.cfg, sym)
		if err != nil {
			return nil, err
		}
		h, err := strategy.NewStochADX(strategy.StochADXConfig{
			Symbol: sym,
			Params: params,
			Router: orders,
			Sink:   engine,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("app: %s: %w", sym, err)
		}
		if err := reg.Register(h); err != nil {
			return nil, fmt.Errorf("app: register %s: %w", sym, err)
		}
	}

	feeder := feed.NewBarFeeder(engine, matcher, orders, a.logger)

	r := &runner{engine: engine, events: events, orders: orders, feeder: feeder}
	switch a.cfg.Feed.Source {
	case "redis":
		if deps.SignalBus == nil {
			return nil, fmt.Errorf("app: redis feed without redis: %w", domain.ErrInvalidConfig)
		}
		r.feed = feed.NewBusBarFeed(deps.SignalBus, a.cfg.Feed.ChannelPrefix, a.cfg.Symbols(), feeder.Deliver, a.logger)
	default:
		r.feed = feed.NewWSBarFeed(feed.WSBarFeedConfig{
			URL:          a.cfg.Feed.WsURL,
			Symbols:      a.cfg.Symbols(),
			PingInterval: a.cfg.Feed.PingInterval.Duration,
			ReconnectMin: a.cfg.Feed.ReconnectMin.Duration,
			ReconnectMax: a.cfg.Feed.ReconnectMax.Duration,
		}, feeder.Deliver, a.logger)
	}
	return r, nil
}

func retryPolicy(attempts int, lo, hi time.Duration, factor float64) service.RetryPolicy {
	p := service.DefaultRetryPolicy()
	if attempts > 0 {
		p.MaxAttempts = attempts
	}
	if lo > 0 {
		p.Min = lo
	}
	if hi > 0 {
		p.Max = hi
	}
	if factor > 1 {
		p.Factor = factor
	}
	return p
}

// serve cancels orders left open by an earlier process, then runs the
// engine, the feed, the optional venue listener and the optional HTTP
// server until ctx is cancelled, then flushes the journal.
func (a *App) serve(ctx context.Context, deps *Dependencies, r *runner) error {
	for _, sym := range a.cfg.Symbols() {
		if err := r.orders.CancelStale(ctx, sym); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.engine.Run(gctx) })
	g.Go(func() error { return r.feed.Run(gctx) })
	if r.listen != nil {
		g.Go(func() error { return r.listen(gctx) })
	}

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{Port: a.cfg.Server.Port, APIKey: a.cfg.Server.APIKey}, server.Handlers{
			Health:    handler.NewHealthHandler(a.cfg.Mode, deps.Checks, a.logger),
			Positions: handler.NewPositionHandler(r.engine, deps.PositionStore, a.logger),
			Journal:   handler.NewJournalHandler(deps.OrderStore, deps.AuditStore, a.logger),
		}, a.logger)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if ferr := r.events.Flush(flushCtx); ferr != nil {
		a.logger.Error("journal flush failed", slog.String("error", ferr.Error()))
	}

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
