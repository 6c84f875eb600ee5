package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/stochtrader/internal/domain"
	"github.com/alanyoungcy/stochtrader/internal/strategy"
)

// Engine is the view of the strategy engine the API needs.
type Engine interface {
	Snapshots() []domain.PositionSnapshot
	Instruments() []strategy.InstrumentInfo
	RecentEvents(limit int) []domain.PositionEvent
	ClosePosition(ctx context.Context, symbol, reason string) error
}

// PositionHandler serves live positions, history and the flatten command.
type PositionHandler struct {
	engine  Engine
	history domain.PositionStore
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler. history may be nil.
func NewPositionHandler(engine Engine, history domain.PositionStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{engine: engine, history: history, logger: logger}
}

// ListPositions returns one snapshot per instrument.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	snaps := h.engine.Snapshots()
	if snaps == nil {
		snaps = []domain.PositionSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": snaps})
}

// ClosePosition flattens one instrument. Closing a flat instrument succeeds.
// POST /api/positions/{symbol}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	err := h.engine.ClosePosition(r.Context(), symbol, "manual close")
	switch {
	case errors.Is(err, domain.ErrUnknownInstrument):
		writeError(w, http.StatusNotFound, "unknown instrument "+symbol)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "manual close failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	for _, s := range h.engine.Snapshots() {
		if s.Symbol == symbol {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"symbol": symbol})
}

// ListEvents returns recent position events, newest first.
// GET /api/events?limit=N
func (h *PositionHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events := h.engine.RecentEvents(queryLimit(r, 100))
	if events == nil {
		events = []domain.PositionEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ListInstruments returns every managed instrument.
// GET /api/instruments
func (h *PositionHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	infos := h.engine.Instruments()
	if infos == nil {
		infos = []strategy.InstrumentInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"instruments": infos})
}

// ListHistory returns stored positions. Without a store it answers 404.
// GET /api/positions/history?symbol=ES&limit=N
func (h *PositionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "position history is not enabled")
		return
	}
	positions, err := h.history.ListHistory(r.Context(), r.URL.Query().Get("symbol"),
		domain.ListOpts{Limit: queryLimit(r, 50)})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetPosition returns one stored position.
// GET /api/positions/history/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "position history is not enabled")
		return
	}
	id := r.PathValue("id")
	pos, err := h.history.GetByID(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "position not found")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "get position failed", slog.String("position_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load position")
	default:
		writeJSON(w, http.StatusOK, pos)
	}
}
