package postgres

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// query accumulates SQL text and positional arguments.
type query struct {
	sql  strings.Builder
	args []any
}

func (q *query) add(s string) { q.sql.WriteString(s) }

// arg appends v and returns its placeholder.
func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *query) window(column string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.add(" AND " + column + " >= " + q.arg(*opts.Since))
	}
	if opts.Until != nil {
		q.add(" AND " + column + " <= " + q.arg(*opts.Until))
	}
}

func (q *query) page(opts domain.ListOpts) {
	if opts.Limit > 0 {
		q.add(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.add(" OFFSET " + q.arg(opts.Offset))
	}
}

// parseNumeric reads a NUMERIC column selected as text.
func parseNumeric(s *string) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: parse numeric %q: %w", *s, err)
	}
	return d, nil
}
