package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderKind is the execution style of an order.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindStop   OrderKind = "stop"
	OrderKindLimit  OrderKind = "limit"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// OrderHandle identifies an order accepted by a venue.
type OrderHandle string

// Order is a single-contract instruction for the venue. Price is zero for
// market orders. OcoID groups the two exit legs of a position; when one leg
// fills the venue cancels every other order sharing the same OcoID.
type Order struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Kind      OrderKind       `json:"kind"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Label     string          `json:"label"`
	OcoID     string          `json:"oco_id,omitempty"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// OcoPair is the protective exit pair of an open position: a stop leg and a
// profit-target leg. A fill of either leg cancels the other.
type OcoPair struct {
	ID     string
	Stop   Order
	Profit Order
}

// Has reports whether orderID is one of the legs.
func (p OcoPair) Has(orderID string) bool {
	return p.Stop.ID == orderID || p.Profit.ID == orderID
}

// OrderEventKind classifies out-of-band notifications from a venue.
type OrderEventKind string

const (
	OrderEventFilled    OrderEventKind = "filled"
	OrderEventCancelled OrderEventKind = "cancelled"
	OrderEventRejected  OrderEventKind = "rejected"
)

// OrderEvent is an asynchronous fill/cancel/reject notification.
type OrderEvent struct {
	OrderID string          `json:"order_id"`
	OcoID   string          `json:"oco_id,omitempty"`
	Symbol  string          `json:"symbol"`
	Kind    OrderEventKind  `json:"kind"`
	Price   decimal.Decimal `json:"price"`
	Reason  string          `json:"reason,omitempty"`
	Time    time.Time       `json:"time"`
}
