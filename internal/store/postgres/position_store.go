package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// PositionStore implements domain.PositionStore.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionColumns = `id, symbol, direction, entry_price::text, exit_price::text, exit_reason,
	status, strategy, opened_at, closed_at`

// Create inserts an open position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const q = `
		INSERT INTO positions (id, symbol, direction, entry_price, status, strategy, opened_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, q,
		p.ID, p.Symbol, int(p.Direction), p.EntryPrice.String(),
		string(p.Status), p.Strategy, p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Close marks an open position closed at exitPrice.
func (s *PositionStore) Close(ctx context.Context, id string, exitPrice decimal.Decimal, reason string) error {
	const q = `
		UPDATE positions
		SET exit_price = $1::numeric, exit_reason = $2, status = $3, closed_at = $4
		WHERE id = $5 AND status = $6`
	tag, err := s.pool.Exec(ctx, q,
		exitPrice.String(), reason, string(domain.PositionStatusClosed), time.Now().UTC(),
		id, string(domain.PositionStatusOpen),
	)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: open position %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// GetByID loads one position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("postgres: position %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListHistory returns positions for symbol, newest first. An empty symbol
// lists every instrument.
func (s *PositionStore) ListHistory(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Position, error) {
	var q query
	q.add(`SELECT ` + positionColumns + ` FROM positions WHERE TRUE`)
	if symbol != "" {
		q.add(" AND symbol = " + q.arg(symbol))
	}
	q.window("opened_at", opts)
	q.add(" ORDER BY opened_at DESC")
	q.page(opts)

	rows, err := s.pool.Query(ctx, q.sql.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	return out, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p         domain.Position
		direction int
		entry     string
		exit      *string
		status    string
	)
	if err := row.Scan(&p.ID, &p.Symbol, &direction, &entry, &exit, &p.ExitReason,
		&status, &p.Strategy, &p.OpenedAt, &p.ClosedAt); err != nil {
		return domain.Position{}, err
	}
	entryPx, err := parseNumeric(&entry)
	if err != nil {
		return domain.Position{}, err
	}
	if exit != nil {
		exitPx, err := parseNumeric(exit)
		if err != nil {
			return domain.Position{}, err
		}
		p.ExitPrice = &exitPx
	}
	p.Direction = domain.Direction(direction)
	p.EntryPrice = entryPx
	p.Status = domain.PositionStatus(status)
	return p, nil
}
