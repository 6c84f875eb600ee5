package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// BusBarFeed reads bars published on "<prefix><symbol>" pub/sub channels.
type BusBarFeed struct {
	bus     domain.SignalBus
	prefix  string
	symbols []string
	onBar   BarFunc
	logger  *slog.Logger
}

// NewBusBarFeed creates a BusBarFeed.
func NewBusBarFeed(bus domain.SignalBus, prefix string, symbols []string, onBar BarFunc, logger *slog.Logger) *BusBarFeed {
	return &BusBarFeed{
		bus:     bus,
		prefix:  prefix,
		symbols: symbols,
		onBar:   onBar,
		logger:  logger.With(slog.String("component", "bus_bar_feed")),
	}
}

// Run subscribes to every symbol channel and delivers bars until ctx is
// cancelled. Bars of one symbol are delivered in publication order.
func (f *BusBarFeed) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range f.symbols {
		channel := f.prefix + sym
		ch, err := f.bus.Subscribe(gctx, channel)
		if err != nil {
			return fmt.Errorf("feed/bus: subscribe %s: %w", channel, err)
		}
		g.Go(func() error {
			return f.consume(gctx, sym, ch)
		})
	}
	f.logger.Info("bus bar feed started", slog.Any("symbols", f.symbols))
	return g.Wait()
}

func (f *BusBarFeed) consume(ctx context.Context, symbol string, ch <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return fmt.Errorf("feed/bus: %s channel closed", symbol)
			}
			bar, err := DecodeBar(data)
			if errors.Is(err, errNotBar) {
				continue
			}
			if err != nil {
				f.logger.Warn("dropping malformed bar", slog.String("symbol", symbol), slog.String("error", err.Error()))
				continue
			}
			if bar.Symbol != symbol {
				f.logger.Debug("bar symbol does not match channel",
					slog.String("channel_symbol", symbol),
					slog.String("bar_symbol", bar.Symbol),
				)
				continue
			}
			if err := f.onBar(ctx, bar); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.logger.Warn("bar delivery failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
			}
		}
	}
}
