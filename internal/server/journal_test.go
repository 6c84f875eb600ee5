package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
	"github.com/alanyoungcy/stochtrader/internal/server/handler"
)

type stubOrders struct {
	orders map[string]domain.Order
}

func (s *stubOrders) Create(context.Context, domain.Order) error                     { return nil }
func (s *stubOrders) UpdateStatus(context.Context, string, domain.OrderStatus) error { return nil }
func (s *stubOrders) UpdatePrice(context.Context, string, decimal.Decimal) error     { return nil }
func (s *stubOrders) GetByID(_ context.Context, id string) (domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *stubOrders) ListOpen(_ context.Context, symbol string) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range s.orders {
		if o.Symbol == symbol && o.Status == domain.OrderStatusOpen {
			out = append(out, o)
		}
	}
	return out, nil
}

type stubAudit struct {
	opts domain.ListOpts
}

func (s *stubAudit) Log(context.Context, string, map[string]any) error { return nil }
func (s *stubAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.opts = opts
	return []domain.AuditEntry{{ID: 2, Event: "order_placed"}, {ID: 1, Event: "order_placed"}}, nil
}

type stubPositions struct{}

func (stubPositions) Create(context.Context, domain.Position) error { return nil }
func (stubPositions) Close(context.Context, string, decimal.Decimal, string) error {
	return nil
}
func (stubPositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	if id != "pos-1" {
		return domain.Position{}, domain.ErrNotFound
	}
	return domain.Position{ID: "pos-1", Symbol: "ES"}, nil
}
func (stubPositions) ListHistory(context.Context, string, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

func TestJournalEndpoints(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orders := &stubOrders{orders: map[string]domain.Order{
		"ord-1": {ID: "ord-1", Symbol: "ES", Status: domain.OrderStatusOpen},
		"ord-2": {ID: "ord-2", Symbol: "ES", Status: domain.OrderStatusFilled},
	}}
	audit := &stubAudit{}
	srv := httptest.NewServer(Routes(Config{}, Handlers{
		Health:    handler.NewHealthHandler("paper", nil, logger),
		Positions: handler.NewPositionHandler(&fakeEngine{}, stubPositions{}, logger),
		Journal:   handler.NewJournalHandler(orders, audit, logger),
	}, logger))
	defer srv.Close()

	_, body := do(t, http.MethodGet, srv.URL+"/api/orders?symbol=ES", "")
	if list, _ := body["orders"].([]any); len(list) != 1 {
		t.Errorf("open orders = %v", body)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/orders", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("orders without symbol = %d", resp.StatusCode)
	}
	resp, body := do(t, http.MethodGet, srv.URL+"/api/orders/ord-2", "")
	if resp.StatusCode != http.StatusOK || body["id"] != "ord-2" {
		t.Errorf("order = %d %v", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/orders/missing", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing order = %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/audit?limit=2&offset=4&since=2024-03-04T10:00:00Z", "")
	if entries, _ := body["entries"].([]any); resp.StatusCode != http.StatusOK || len(entries) != 2 {
		t.Errorf("audit = %d %v", resp.StatusCode, body)
	}
	want := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	if audit.opts.Limit != 2 || audit.opts.Offset != 4 || audit.opts.Since == nil || !audit.opts.Since.Equal(want) || audit.opts.Until != nil {
		t.Errorf("audit opts = %+v", audit.opts)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/audit?since=yesterday", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad since = %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/api/positions/history/pos-1", "")
	if resp.StatusCode != http.StatusOK || body["Symbol"] != "ES" {
		t.Errorf("position = %d %v", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodGet, srv.URL+"/api/positions/history/pos-9", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing position = %d", resp.StatusCode)
	}
}
