package executor

import (
	"sort"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// OcoBook tracks resting orders and the OCO groups they belong to. It is not
// safe for concurrent use; PaperVenue guards it.
type OcoBook struct {
	orders map[string]*domain.Order
	groups map[string][]string // oco id -> order ids
}

// NewOcoBook returns an empty book.
func NewOcoBook() *OcoBook {
	return &OcoBook{
		orders: make(map[string]*domain.Order),
		groups: make(map[string][]string),
	}
}

// Add rests o in the book.
func (b *OcoBook) Add(o domain.Order) {
	b.orders[o.ID] = &o
	if o.OcoID != "" {
		b.groups[o.OcoID] = append(b.groups[o.OcoID], o.ID)
	}
}

// Get returns the resting order with id.
func (b *OcoBook) Get(id string) (*domain.Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// Remove takes id out of the book and its group.
func (b *OcoBook) Remove(id string) (domain.Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	delete(b.orders, id)
	if o.OcoID != "" {
		ids := b.groups[o.OcoID]
		for i, other := range ids {
			if other == id {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(b.groups, o.OcoID)
		} else {
			b.groups[o.OcoID] = ids
		}
	}
	return *o, true
}

// Siblings returns the other resting orders in id's OCO group.
func (b *OcoBook) Siblings(id string) []domain.Order {
	o, ok := b.orders[id]
	if !ok || o.OcoID == "" {
		return nil
	}
	var out []domain.Order
	for _, other := range b.groups[o.OcoID] {
		if other != id {
			out = append(out, *b.orders[other])
		}
	}
	return out
}

// Symbol returns the resting orders for symbol, stops first, then by
// creation time.
func (b *OcoBook) Symbol(symbol string) []domain.Order {
	var out []domain.Order
	for _, o := range b.orders {
		if o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == domain.OrderKindStop
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of resting orders.
func (b *OcoBook) Len() int { return len(b.orders) }
