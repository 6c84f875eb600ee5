// Package feed turns external bar streams into engine input.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// BarFunc receives each decoded bar.
type BarFunc func(ctx context.Context, bar domain.Bar) error

// errNotBar marks frames that are valid JSON but carry no bar (heartbeats,
// subscription acks).
var errNotBar = errors.New("not a bar")

// DecodeBar parses one JSON bar message and checks that its prices are
// consistent.
func DecodeBar(data []byte) (domain.Bar, error) {
	var bar domain.Bar
	if err := json.Unmarshal(data, &bar); err != nil {
		return domain.Bar{}, fmt.Errorf("feed: decode bar: %w", err)
	}
	bar.Symbol = strings.TrimSpace(bar.Symbol)
	if bar.Symbol == "" || bar.Time.IsZero() {
		return domain.Bar{}, errNotBar
	}
	if bar.High < bar.Low {
		return domain.Bar{}, fmt.Errorf("feed: bar %s %s: high %v below low %v", bar.Symbol, bar.Time, bar.High, bar.Low)
	}
	for _, px := range []float64{bar.Open, bar.Close} {
		if px > bar.High || px < bar.Low {
			return domain.Bar{}, fmt.Errorf("feed: bar %s %s: price %v outside range", bar.Symbol, bar.Time, px)
		}
	}
	return bar, nil
}

func symbolSet(symbols []string) map[string]bool {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return set
}
