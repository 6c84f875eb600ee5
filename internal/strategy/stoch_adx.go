package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
	"github.com/alanyoungcy/stochtrader/internal/indicator"
)

// StochADXConfig wires one StochADX handler.
type StochADXConfig struct {
	Symbol string
	Params Params
	Router OrderRouter
	Sink   EventSink
	// Indicators overrides the go-talib backed indicator set.
	Indicators Indicators
}

// StochADX enters on a %D threshold crossing gated by the day, session,
// volatility and ADX/SMA trend filters, and manages the position with an
// accelerating trailing stop and a profit target.
type StochADX struct {
	symbol  string
	params  Params
	history *indicator.History
	ind     Indicators
	filters FilterEvaluator
	manager *Manager
	logger  *slog.Logger

	mu   sync.RWMutex
	snap domain.PositionSnapshot
}

// NewStochADX validates the parameters and builds a flat handler.
func NewStochADX(cfg StochADXConfig, logger *slog.Logger) (*StochADX, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("strategy: stoch_adx: %w: empty symbol", domain.ErrInvalidConfig)
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("strategy: stoch_adx %s: %w: nil order router", cfg.Symbol, domain.ErrInvalidConfig)
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("strategy: stoch_adx %s: %w", cfg.Symbol, err)
	}
	ind := cfg.Indicators
	if ind == nil {
		ind = indicator.NewSet(cfg.Params.IndicatorConfig())
	}
	h := &StochADX{
		symbol:  cfg.Symbol,
		params:  cfg.Params,
		history: indicator.NewHistory(cfg.Params.HistorySize),
		ind:     ind,
		filters: NewFilterEvaluator(cfg.Params),
		manager: NewManager(cfg.Symbol, cfg.Params, cfg.Router, cfg.Sink, logger),
		logger:  logger.With(slog.String("component", "stoch_adx"), slog.String("symbol", cfg.Symbol)),
	}
	h.refresh()
	return h, nil
}

func (h *StochADX) Name() string   { return "stoch_adx" }
func (h *StochADX) Symbol() string { return h.symbol }

// OnInitialize logs the effective parameters. State starts flat.
func (h *StochADX) OnInitialize(ctx context.Context) error {
	h.logger.Info("handler initialised",
		slog.String("session_start", h.params.SessionStart.String()),
		slog.String("session_end", h.params.SessionEnd.String()),
		slog.Float64("buy_signal", h.params.BuySignal),
		slog.Float64("sell_signal", h.params.SellSignal),
		slog.String("stop_margin", h.params.StopMargin().String()),
		slog.String("profit_margin", h.params.ProfitMargin().String()),
		slog.String("acceleration_seed", h.params.AccelerationSeed.String()),
	)
	return nil
}

// OnNewBar runs the per-bar decision. Bars that are not newer than the last
// accepted bar are ignored. While flat and still warming up it returns
// domain.ErrNotReady.
func (h *StochADX) OnNewBar(ctx context.Context, bar domain.Bar) error {
	defer h.refresh()

	if !h.history.Append(bar) {
		h.logger.Debug("stale bar ignored", slog.Time("time", bar.Time))
		return nil
	}
	h.ind.Update(h.history)

	if h.manager.Position() != domain.Flat {
		if h.params.ExitAtSessionEnd && !h.filters.InSession(bar.Time) {
			return h.manager.ClosePosition(ctx, "session end", decimal.NewFromFloat(bar.Close), bar.Time)
		}
		return h.manager.OnBar(ctx, bar)
	}

	if !h.ind.Ready() {
		return fmt.Errorf("strategy: %s has %d bars: %w", h.symbol, h.history.Len(), domain.ErrNotReady)
	}
	gates := h.filters.Evaluate(FilterInput{
		Time:        bar.Time,
		Position:    h.manager.Position(),
		HighestHigh: h.ind.HighestHigh(),
		LowestLow:   h.ind.LowestLow(),
		ADX:         h.ind.ADX(0),
		SMA0:        h.ind.SMA(0),
		SMA1:        h.ind.SMA(1),
	})
	d0, d1 := h.ind.StochasticD(0), h.ind.StochasticD(1)
	sig := Detect(gates, d0, d1, h.params.BuySignal, h.params.SellSignal)
	if sig == SignalNone {
		return nil
	}
	h.logger.Info("entry signal",
		slog.String("signal", sig.String()),
		slog.Float64("d0", d0),
		slog.Float64("d1", d1),
		slog.Float64("adx", h.ind.ADX(0)),
		slog.Float64("close", bar.Close),
	)
	return h.manager.Enter(ctx, sig.Direction(), bar)
}

// OnOrderEvent forwards a venue notification to the manager.
func (h *StochADX) OnOrderEvent(ctx context.Context, ev domain.OrderEvent) error {
	defer h.refresh()
	h.manager.HandleOrderEvent(ctx, ev)
	return nil
}

// ClosePosition flattens at the last close. Flat handlers do nothing.
func (h *StochADX) ClosePosition(ctx context.Context, reason string) error {
	defer h.refresh()
	last := h.history.Current()
	return h.manager.ClosePosition(ctx, reason, decimal.NewFromFloat(last.Close), last.Time)
}

// Snapshot is safe to call from any goroutine.
func (h *StochADX) Snapshot() domain.PositionSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

func (h *StochADX) refresh() {
	snap := h.manager.Snapshot()
	snap.LastBar = h.history.Current().Time
	h.mu.Lock()
	h.snap = snap
	h.mu.Unlock()
}
