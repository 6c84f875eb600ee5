package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyVenue fails the first failures calls of every operation with err.
type flakyVenue struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	orders   []domain.Order
	modified map[string]decimal.Decimal
	canceled []string
	adopted  []string
	// gone orders are unknown to the venue.
	gone map[string]bool
}

func (v *flakyVenue) fail() error {
	v.calls++
	if v.calls <= v.failures {
		return v.err
	}
	return nil
}

func (v *flakyVenue) Submit(_ context.Context, o domain.Order) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.fail(); err != nil {
		return err
	}
	v.orders = append(v.orders, o)
	return nil
}

func (v *flakyVenue) Modify(_ context.Context, id string, price decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.fail(); err != nil {
		return err
	}
	if v.modified == nil {
		v.modified = make(map[string]decimal.Decimal)
	}
	v.modified[id] = price
	return nil
}

func (v *flakyVenue) Cancel(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gone[id] {
		return fmt.Errorf("cancel %s: %w", id, domain.ErrOrderNotActive)
	}
	if err := v.fail(); err != nil {
		return err
	}
	v.canceled = append(v.canceled, id)
	return nil
}

func (v *flakyVenue) Adopt(o domain.Order) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.adopted = append(v.adopted, o.ID)
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemOrders() *memOrders { return &memOrders{orders: make(map[string]domain.Order)} }

func (s *memOrders) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *memOrders) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	s.orders[id] = o
	return nil
}

func (s *memOrders) UpdatePrice(_ context.Context, id string, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Price = price
	s.orders[id] = o
	return nil
}

func (s *memOrders) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memOrders) ListOpen(_ context.Context, symbol string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Symbol == symbol && (o.Status == domain.OrderStatusPending || o.Status == domain.OrderStatusOpen) {
			out = append(out, o)
		}
	}
	return out, nil
}

type memPositions struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newMemPositions() *memPositions {
	return &memPositions{positions: make(map[string]domain.Position)}
}

func (s *memPositions) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = p
	return nil
}

func (s *memPositions) Close(_ context.Context, id string, exit decimal.Decimal, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.ExitPrice = &exit
	p.ExitReason = reason
	p.Status = domain.PositionStatusClosed
	s.positions[id] = p
	return nil
}

func (s *memPositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memPositions) ListHistory(context.Context, string, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[string][][]byte)
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *memBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memBlob) Put(_ context.Context, key string, data io.Reader, _ string) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = buf.Bytes()
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, key string, data io.Reader, _ int64) error {
	return m.Put(ctx, key, data, "")
}

func (m *memBlob) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []domain.PositionEventKind
}

func (n *recordingNotifier) NotifyPosition(_ context.Context, ev domain.PositionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, ev.Kind)
	return nil
}
