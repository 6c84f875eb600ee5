package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newPaper() *PaperVenue {
	return NewPaperVenue(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func bar(i int, open, high, low, closePrice float64) domain.Bar {
	return domain.Bar{Symbol: "ES", Time: t0.Add(time.Duration(i) * time.Minute), Open: open, High: high, Low: low, Close: closePrice}
}

func order(id string, side domain.OrderSide, kind domain.OrderKind, price, oco string) domain.Order {
	o := domain.Order{ID: id, Symbol: "ES", Side: side, Kind: kind, Quantity: 1, OcoID: oco, CreatedAt: t0}
	if price != "" {
		o.Price = decimal.RequireFromString(price)
	}
	return o
}

// placeLongExits opens a long at 100 with a stop at 94 and a target at 119.25.
func placeLongExits(t *testing.T, v *PaperVenue) {
	t.Helper()
	ctx := context.Background()
	v.OnBar(bar(0, 100, 100, 100, 100))
	for _, o := range []domain.Order{
		order("entry", domain.OrderSideBuy, domain.OrderKindMarket, "", ""),
		order("stop", domain.OrderSideSell, domain.OrderKindStop, "94", "oco-1"),
		order("profit", domain.OrderSideSell, domain.OrderKindLimit, "119.25", "oco-1"),
	} {
		if err := v.Submit(ctx, o); err != nil {
			t.Fatalf("submit %s: %v", o.ID, err)
		}
	}
}

func TestPaperMarketFillsAtLastClose(t *testing.T) {
	v := newPaper()
	err := v.Submit(context.Background(), order("m", domain.OrderSideBuy, domain.OrderKindMarket, "", ""))
	if !errors.Is(err, domain.ErrOrderRejected) {
		t.Fatalf("market order without a price: err = %v", err)
	}

	placeLongExits(t, v)
	evs := v.Drain()
	if len(evs) != 1 || evs[0].OrderID != "entry" || evs[0].Kind != domain.OrderEventFilled || !evs[0].Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("events = %+v", evs)
	}
	if v.Resting() != 2 {
		t.Errorf("resting = %d, want 2", v.Resting())
	}
}

func TestPaperProfitFillCancelsStop(t *testing.T) {
	v := newPaper()
	placeLongExits(t, v)
	v.Drain()

	if evs := v.OnBar(bar(1, 100, 110, 99, 105)); len(evs) != 0 {
		t.Fatalf("untouched bar produced %+v", evs)
	}
	evs := v.OnBar(bar(2, 110, 120, 109, 118))
	if len(evs) != 2 {
		t.Fatalf("events = %+v, want fill + cancel", evs)
	}
	if evs[0].OrderID != "profit" || evs[0].Kind != domain.OrderEventFilled || !evs[0].Price.Equal(decimal.RequireFromString("119.25")) {
		t.Errorf("fill = %+v", evs[0])
	}
	if evs[1].OrderID != "stop" || evs[1].Kind != domain.OrderEventCancelled {
		t.Errorf("sibling = %+v", evs[1])
	}
	if v.Resting() != 0 {
		t.Errorf("resting = %d", v.Resting())
	}
}

func TestPaperStopWinsWhenBothTrigger(t *testing.T) {
	v := newPaper()
	placeLongExits(t, v)
	v.Drain()

	evs := v.OnBar(bar(1, 100, 125, 90, 100))
	if len(evs) != 2 || evs[0].OrderID != "stop" || evs[1].OrderID != "profit" || evs[1].Kind != domain.OrderEventCancelled {
		t.Fatalf("events = %+v", evs)
	}
}

func TestPaperStopGapFillsAtOpen(t *testing.T) {
	v := newPaper()
	placeLongExits(t, v)
	v.Drain()

	evs := v.OnBar(bar(1, 92, 93, 91, 92))
	if len(evs) == 0 || !evs[0].Price.Equal(decimal.NewFromInt(92)) {
		t.Fatalf("events = %+v, want stop filled at the 92 open", evs)
	}
}

func TestPaperModifyAndCancel(t *testing.T) {
	ctx := context.Background()
	v := newPaper()
	placeLongExits(t, v)
	v.Drain()

	if err := v.Modify(ctx, "stop", decimal.RequireFromString("99")); err != nil {
		t.Fatal(err)
	}
	evs := v.OnBar(bar(1, 100, 101, 98.5, 100))
	if len(evs) != 2 || evs[0].OrderID != "stop" || !evs[0].Price.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("events = %+v, want the modified stop at 99", evs)
	}

	if err := v.Cancel(ctx, "stop"); !errors.Is(err, domain.ErrOrderNotActive) {
		t.Errorf("cancel of filled order: err = %v", err)
	}
	if err := v.Modify(ctx, "profit", decimal.NewFromInt(1)); !errors.Is(err, domain.ErrOrderNotActive) {
		t.Errorf("modify of cancelled order: err = %v", err)
	}
}

func TestPaperShortExits(t *testing.T) {
	ctx := context.Background()
	v := newPaper()
	v.OnBar(bar(0, 100, 100, 100, 100))
	_ = v.Submit(ctx, order("stop", domain.OrderSideBuy, domain.OrderKindStop, "106", "oco-2"))
	_ = v.Submit(ctx, order("profit", domain.OrderSideBuy, domain.OrderKindLimit, "80.75", "oco-2"))

	evs := v.OnBar(bar(1, 100, 107, 99, 106))
	if len(evs) != 2 || evs[0].OrderID != "stop" || !evs[0].Price.Equal(decimal.NewFromInt(106)) {
		t.Fatalf("events = %+v", evs)
	}
}
