package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// InstrumentInfo holds runtime info for a registered handler (for status APIs).
type InstrumentInfo struct {
	Symbol   string           `json:"symbol"`
	Handler  string           `json:"handler"`
	Position domain.Direction `json:"position"`
}

// Registry holds one BarHandler per instrument symbol. It is safe for
// concurrent use.
type Registry struct {
	handlers map[string]BarHandler
	mu       sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]BarHandler),
	}
}

// Register adds h under its symbol. A second handler for the same symbol is
// rejected so an instrument never has two managers.
func (r *Registry) Register(h BarHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[h.Symbol()]; ok {
		return fmt.Errorf("strategy: handler for %q already registered", h.Symbol())
	}
	r.handlers[h.Symbol()] = h
	return nil
}

// Get retrieves the handler for symbol.
func (r *Registry) Get(symbol string) (BarHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[symbol]
	if !ok {
		return nil, fmt.Errorf("strategy: %q: %w", symbol, domain.ErrUnknownInstrument)
	}
	return h, nil
}

// List returns the registered symbols in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ListInfo returns runtime info for all registered handlers.
func (r *Registry) ListInfo() []InstrumentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]InstrumentInfo, 0, len(r.handlers))
	for sym, h := range r.handlers {
		infos = append(infos, InstrumentInfo{Symbol: sym, Handler: h.Name(), Position: h.Snapshot().Direction})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Symbol < infos[j].Symbol })
	return infos
}
