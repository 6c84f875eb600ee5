package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

type memBus struct {
	mu      sync.Mutex
	streams map[string][][]byte
	subs    map[string]chan []byte
	failErr error
}

func newMemBus() *memBus {
	return &memBus{streams: make(map[string][][]byte), subs: make(map[string]chan []byte)}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch := b.subs[channel]
	b.mu.Unlock()
	if ch != nil {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 16)
	b.subs[channel] = ch
	return ch, nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return b.failErr
	}
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *memBus) subscribed(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs[channel] != nil
}

func TestBusVenueWritesCommands(t *testing.T) {
	ctx := context.Background()
	bus := newMemBus()
	v := NewBusVenue(bus, "venue:commands:", "venue:events:", slog.New(slog.NewTextHandler(io.Discard, nil)))

	o := order("s1", domain.OrderSideSell, domain.OrderKindStop, "94", "oco")
	if err := v.Submit(ctx, o); err != nil {
		t.Fatal(err)
	}
	if err := v.Modify(ctx, "s1", decimal.RequireFromString("95.4")); err != nil {
		t.Fatal(err)
	}
	if err := v.Cancel(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := v.Cancel(ctx, "unknown"); !errors.Is(err, domain.ErrOrderNotActive) {
		t.Errorf("cancel unknown: err = %v", err)
	}

	msgs := bus.streams["venue:commands:ES"]
	if len(msgs) != 3 {
		t.Fatalf("stream entries = %d, want 3", len(msgs))
	}
	var cmd VenueCommand
	if err := json.Unmarshal(msgs[1], &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Action != ActionModify || cmd.OrderID != "s1" || !cmd.Price.Equal(decimal.RequireFromString("95.4")) {
		t.Errorf("modify command = %+v", cmd)
	}
}

func TestBusVenueCancelsAdoptedOrder(t *testing.T) {
	ctx := context.Background()
	bus := newMemBus()
	v := NewBusVenue(bus, "c:", "e:", slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := v.Cancel(ctx, "old"); !errors.Is(err, domain.ErrOrderNotActive) {
		t.Fatalf("cancel before adopt: err = %v", err)
	}
	v.Adopt(domain.Order{ID: "old", Symbol: "NQ"})
	if err := v.Cancel(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	if n := len(bus.streams["c:NQ"]); n != 1 {
		t.Errorf("stream entries = %d, want 1", n)
	}
}

func TestBusVenueStreamFailureIsTransient(t *testing.T) {
	bus := newMemBus()
	bus.failErr = errors.New("connection refused")
	v := NewBusVenue(bus, "c:", "e:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := v.Submit(context.Background(), order("x", domain.OrderSideBuy, domain.OrderKindMarket, "", ""))
	if !errors.Is(err, domain.ErrTransient) {
		t.Errorf("err = %v, want ErrTransient", err)
	}
}

func TestBusVenueListenDeduplicates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := newMemBus()
	v := NewBusVenue(bus, "c:", "e:", slog.New(slog.NewTextHandler(io.Discard, nil)))

	got := make(chan domain.OrderEvent, 4)
	go func() {
		_ = v.Listen(ctx, []string{"ES"}, func(_ context.Context, ev domain.OrderEvent) error {
			got <- ev
			return nil
		})
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !bus.subscribed("e:ES") {
		if time.Now().After(deadline) {
			t.Fatal("listener never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	fill, _ := json.Marshal(domain.OrderEvent{OrderID: "p1", Symbol: "ES", Kind: domain.OrderEventFilled})
	_ = bus.Publish(ctx, "e:ES", fill)
	_ = bus.Publish(ctx, "e:ES", fill)
	_ = bus.Publish(ctx, "e:ES", []byte("not json"))
	cancelled, _ := json.Marshal(domain.OrderEvent{OrderID: "s1", Symbol: "ES", Kind: domain.OrderEventCancelled})
	_ = bus.Publish(ctx, "e:ES", cancelled)

	first := <-got
	second := <-got
	if first.OrderID != "p1" || second.OrderID != "s1" {
		t.Errorf("delivered %s then %s, want p1 then s1", first.OrderID, second.OrderID)
	}
	select {
	case extra := <-got:
		t.Errorf("unexpected extra event %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}
