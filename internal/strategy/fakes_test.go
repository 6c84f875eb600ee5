package strategy

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
	"github.com/alanyoungcy/stochtrader/internal/indicator"
)

var monday = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type routerCall struct {
	op     string
	order  domain.Order
	handle domain.OrderHandle
	price  decimal.Decimal
}

// recordingRouter accepts every request unless an error hook says otherwise.
// Handles are the order IDs.
type recordingRouter struct {
	mu        sync.Mutex
	calls     []routerCall
	submitErr func(domain.Order) error
	modifyErr error
	cancelErr error
}

func (r *recordingRouter) Submit(_ context.Context, o domain.Order) (domain.OrderHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitErr != nil {
		if err := r.submitErr(o); err != nil {
			return "", err
		}
	}
	r.calls = append(r.calls, routerCall{op: "submit", order: o, handle: domain.OrderHandle(o.ID)})
	return domain.OrderHandle(o.ID), nil
}

func (r *recordingRouter) Modify(_ context.Context, h domain.OrderHandle, p decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.modifyErr != nil {
		return r.modifyErr
	}
	r.calls = append(r.calls, routerCall{op: "modify", handle: h, price: p})
	return nil
}

func (r *recordingRouter) Cancel(_ context.Context, h domain.OrderHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelErr != nil {
		return r.cancelErr
	}
	r.calls = append(r.calls, routerCall{op: "cancel", handle: h})
	return nil
}

func (r *recordingRouter) snapshot() []routerCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]routerCall(nil), r.calls...)
}

func (r *recordingRouter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *recordingRouter) submits() []domain.Order {
	var out []domain.Order
	for _, c := range r.snapshot() {
		if c.op == "submit" {
			out = append(out, c.order)
		}
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.PositionEvent
}

func (s *recordingSink) OnPositionEvent(_ context.Context, ev domain.PositionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) kinds() []domain.PositionEventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PositionEventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

// fakeIndicators returns fixed readings; by default every filter passes and
// %D crosses up through 51.
type fakeIndicators struct {
	ready      bool
	d0, d1     float64
	adx        float64
	sma0, sma1 float64
	hh, ll     float64
}

func passingIndicators() *fakeIndicators {
	return &fakeIndicators{ready: true, d0: 52, d1: 48, adx: 25, sma0: 101, sma1: 100, hh: 110, ll: 100}
}

func (f *fakeIndicators) Update(*indicator.History) {}
func (f *fakeIndicators) Ready() bool              { return f.ready }
func (f *fakeIndicators) ADX(int) float64          { return f.adx }
func (f *fakeIndicators) HighestHigh() float64     { return f.hh }
func (f *fakeIndicators) LowestLow() float64       { return f.ll }

func (f *fakeIndicators) StochasticD(n int) float64 {
	if n == 0 {
		return f.d0
	}
	return f.d1
}

func (f *fakeIndicators) SMA(n int) float64 {
	if n == 0 {
		return f.sma0
	}
	return f.sma1
}

func barAt(t time.Time, closePrice float64) domain.Bar {
	return domain.Bar{
		Symbol: "ES",
		Time:   t,
		Open:   closePrice,
		High:   closePrice,
		Low:    closePrice,
		Close:  closePrice,
	}
}
