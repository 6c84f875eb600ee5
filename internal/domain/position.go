package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the signed unit count of a position.
type Direction int

const (
	Short Direction = -1
	Flat  Direction = 0
	Long  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// EntrySide is the order side that opens a position in this direction.
func (d Direction) EntrySide() OrderSide {
	if d == Short {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ExitSide is the order side that closes a position in this direction.
func (d Direction) ExitSide() OrderSide {
	return d.EntrySide().Opposite()
}

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is an open or historical single-contract position.
type Position struct {
	ID         string
	Symbol     string
	Direction  Direction
	EntryPrice decimal.Decimal
	ExitPrice  *decimal.Decimal
	ExitReason string
	Status     PositionStatus
	Strategy   string
	OpenedAt   time.Time
	ClosedAt   *time.Time
}

// PositionSnapshot is a read-only view of a manager's state.
type PositionSnapshot struct {
	Symbol        string          `json:"symbol"`
	Direction     Direction       `json:"direction"`
	PositionID    string          `json:"position_id,omitempty"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	ProfitPrice   decimal.Decimal `json:"profit_price"`
	Acceleration  decimal.Decimal `json:"acceleration"`
	FurthestClose decimal.Decimal `json:"furthest_close"`
	ExitsMissing  bool            `json:"exits_missing"`
	ExitPending   bool            `json:"exit_pending"`
	LastBar       time.Time       `json:"last_bar"`
}
