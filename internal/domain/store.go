package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore journals orders sent to the venue.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	UpdatePrice(ctx context.Context, id string, price decimal.Decimal) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListOpen(ctx context.Context, symbol string) ([]Order, error)
}

// PositionStore persists position history.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Close(ctx context.Context, id string, exitPrice decimal.Decimal, reason string) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListHistory(ctx context.Context, symbol string, opts ListOpts) ([]Position, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
