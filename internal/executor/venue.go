// Package executor holds the order venues the order service routes to.
package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// Venue accepts orders keyed by their client order ID. Fills, cancels and
// rejects are reported asynchronously as domain.OrderEvent values carrying
// the same ID.
type Venue interface {
	Submit(ctx context.Context, order domain.Order) error
	Modify(ctx context.Context, orderID string, price decimal.Decimal) error
	Cancel(ctx context.Context, orderID string) error
}
