package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

func startEngine(t *testing.T, closeOnShutdown bool) (*Engine, *recordingRouter, context.CancelFunc, <-chan error) {
	t.Helper()
	router := &recordingRouter{}
	reg := NewRegistry()
	eng := NewEngine(reg, nil, discardLogger(), WithCloseOnShutdown(closeOnShutdown))
	h, err := NewStochADX(StochADXConfig{
		Symbol:     "ES",
		Params:     DefaultParams(dec("0.25")),
		Router:     router,
		Sink:       eng,
		Indicators: passingIndicators(),
	}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(h); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	return eng, router, cancel, done
}

func TestEngineRoutesBarsAndCloses(t *testing.T) {
	eng, router, cancel, done := startEngine(t, false)
	defer func() {
		cancel()
		<-done
	}()
	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	if err := eng.HandleBar(ctx, barAt(monday, 100)); err != nil {
		t.Fatal(err)
	}
	// The close request is queued behind the bar, so the entry has happened.
	if err := eng.ClosePosition(ctx, "ES", "manual"); err != nil {
		t.Fatal(err)
	}
	subs := router.submits()
	if len(subs) != 4 || subs[3].Kind != domain.OrderKindMarket || subs[3].Side != domain.OrderSideSell {
		t.Fatalf("submits = %+v", subs)
	}

	events := eng.RecentEvents(10)
	if len(events) != 3 || events[0].Kind != domain.PositionClosed || events[2].Kind != domain.PositionOpened {
		t.Errorf("recent events = %+v", events)
	}
	snaps := eng.Snapshots()
	if len(snaps) != 1 || snaps[0].Direction != domain.Flat {
		t.Errorf("snapshots = %+v", snaps)
	}
	if err := eng.CloseAll(ctx, "manual"); err != nil {
		t.Errorf("CloseAll on flat book: %v", err)
	}
}

func TestEngineProcessBarWaitsForHandler(t *testing.T) {
	eng, router, cancel, done := startEngine(t, false)
	defer func() {
		cancel()
		<-done
	}()
	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	if err := eng.ProcessBar(ctx, barAt(monday, 100)); err != nil {
		t.Fatal(err)
	}
	if eng.Snapshots()[0].Direction != domain.Long {
		t.Error("ProcessBar returned before the entry")
	}
	if subs := router.submits(); len(subs) != 3 {
		t.Errorf("submits = %d, want entry and both exits", len(subs))
	}

	bar := barAt(monday, 1)
	bar.Symbol = "NQ"
	if err := eng.ProcessBar(ctx, bar); !errors.Is(err, domain.ErrUnknownInstrument) {
		t.Errorf("unknown symbol: err = %v", err)
	}
}

func TestEngineUnknownInstrument(t *testing.T) {
	eng, _, cancel, done := startEngine(t, false)
	defer func() {
		cancel()
		<-done
	}()
	bar := barAt(monday, 1)
	bar.Symbol = "NQ"
	if err := eng.HandleBar(context.Background(), bar); !errors.Is(err, domain.ErrUnknownInstrument) {
		t.Errorf("err = %v, want ErrUnknownInstrument", err)
	}
}

func TestEngineClosesOnShutdown(t *testing.T) {
	eng, router, cancel, done := startEngine(t, true)
	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	if err := eng.HandleBar(ctx, barAt(monday, 100)); err != nil {
		t.Fatal(err)
	}
	// Wait for the bar to be handled before shutting down.
	deadline := time.Now().Add(5 * time.Second)
	for eng.Snapshots()[0].Direction != domain.Long {
		if time.Now().After(deadline) {
			t.Fatal("entry never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	subs := router.submits()
	if last := subs[len(subs)-1]; last.Kind != domain.OrderKindMarket || last.Side != domain.OrderSideSell {
		t.Errorf("last order = %+v, want market sell on shutdown", last)
	}
	if eng.Snapshots()[0].Direction != domain.Flat {
		t.Error("position left open after shutdown")
	}
}

func TestRegistryRejectsDuplicateSymbol(t *testing.T) {
	reg := NewRegistry()
	mk := func() BarHandler {
		h, err := NewStochADX(StochADXConfig{Symbol: "ES", Params: DefaultParams(dec("0.25")), Router: &recordingRouter{}}, discardLogger())
		if err != nil {
			t.Fatal(err)
		}
		return h
	}
	if err := reg.Register(mk()); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(mk()); err == nil {
		t.Error("second handler for ES accepted")
	}
	if infos := reg.ListInfo(); len(infos) != 1 || infos[0].Handler != "stoch_adx" {
		t.Errorf("ListInfo = %+v", infos)
	}
}
