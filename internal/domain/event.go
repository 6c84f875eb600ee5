package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionEventKind names a step in a position's lifecycle.
type PositionEventKind string

const (
	PositionOpened      PositionEventKind = "position_opened"
	PositionExitsPlaced PositionEventKind = "exits_placed"
	PositionStopMoved   PositionEventKind = "stop_moved"
	PositionClosed      PositionEventKind = "position_closed"
)

// PositionEvent is emitted by the position manager on every state change.
type PositionEvent struct {
	Kind         PositionEventKind `json:"event"`
	PositionID   string            `json:"position_id"`
	Symbol       string            `json:"symbol"`
	Direction    Direction         `json:"direction"`
	Price        decimal.Decimal   `json:"price"`
	StopPrice    decimal.Decimal   `json:"stop_price,omitempty"`
	ProfitPrice  decimal.Decimal   `json:"profit_price,omitempty"`
	Acceleration decimal.Decimal   `json:"acceleration,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	BarTime      time.Time         `json:"bar_time"`
	CreatedAt    time.Time         `json:"created_at"`
}
