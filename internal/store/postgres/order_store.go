package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// OrderStore implements domain.OrderStore.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `id, symbol, side, kind, quantity, price::text, label, oco_id, status, created_at`

// Create inserts o.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const q = `
		INSERT INTO orders (id, symbol, side, kind, quantity, price, label, oco_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, q,
		o.ID, o.Symbol, string(o.Side), string(o.Kind), o.Quantity,
		o.Price.String(), o.Label, o.OcoID, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus sets status and the matching terminal timestamp.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	q := `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`
	switch status {
	case domain.OrderStatusFilled:
		q = `UPDATE orders SET status = $1, filled_at = NOW(), updated_at = NOW() WHERE id = $2`
	case domain.OrderStatusCancelled:
		q = `UPDATE orders SET status = $1, cancelled_at = NOW(), updated_at = NOW() WHERE id = $2`
	}
	tag, err := s.pool.Exec(ctx, q, string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: order %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdatePrice records a modified resting price.
func (s *OrderStore) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET price = $1::numeric, updated_at = NOW() WHERE id = $2`,
		price.String(), id)
	if err != nil {
		return fmt.Errorf("postgres: update order price %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: order %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID loads one order.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("postgres: order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListOpen returns pending and resting orders for symbol, oldest first.
func (s *OrderStore) ListOpen(ctx context.Context, symbol string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE symbol = $1 AND status IN ('pending', 'open') ORDER BY created_at`,
		symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list open orders %s: %w", symbol, err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                  domain.Order
		side, kind, status string
		price              string
	)
	if err := row.Scan(&o.ID, &o.Symbol, &side, &kind, &o.Quantity, &price, &o.Label, &o.OcoID, &status, &o.CreatedAt); err != nil {
		return domain.Order{}, err
	}
	px, err := parseNumeric(&price)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Kind = domain.OrderKind(kind)
	o.Status = domain.OrderStatus(status)
	o.Price = px
	return o, nil
}
