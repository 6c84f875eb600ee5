package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// JournalHandler serves the order journal and the audit log. Either store
// may be nil when Postgres is disabled.
type JournalHandler struct {
	orders domain.OrderStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(orders domain.OrderStore, audit domain.AuditStore, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{orders: orders, audit: audit, logger: logger}
}

// ListOpenOrders returns pending and resting orders of one instrument.
// GET /api/orders?symbol=ES
func (h *JournalHandler) ListOpenOrders(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeError(w, http.StatusNotFound, "order journal is not enabled")
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter required")
		return
	}
	orders, err := h.orders.ListOpen(r.Context(), symbol)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list open orders failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetOrder returns one journaled order.
// GET /api/orders/{id}
func (h *JournalHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		writeError(w, http.StatusNotFound, "order journal is not enabled")
		return
	}
	id := r.PathValue("id")
	o, err := h.orders.GetByID(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case err != nil:
		h.logger.ErrorContext(r.Context(), "get order failed", slog.String("order_id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load order")
	default:
		writeJSON(w, http.StatusOK, o)
	}
}

// ListAudit returns audit entries, newest first.
// GET /api/audit?limit=N&offset=N&since=RFC3339&until=RFC3339
func (h *JournalHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log is not enabled")
		return
	}
	opts, err := listOpts(r, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
