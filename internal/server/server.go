// Package server exposes the HTTP control API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stochtrader/internal/server/handler"
	"github.com/alanyoungcy/stochtrader/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port   int
	APIKey string // empty disables authentication
}

// Handlers aggregates the endpoint handlers.
type Handlers struct {
	Health    *handler.HealthHandler
	Positions *handler.PositionHandler
	Journal   *handler.JournalHandler
}

// Server is the control API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers the routes and middleware.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      Routes(cfg, handlers, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the handler tree; tests serve it with httptest.
func Routes(cfg Config, handlers Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/history", handlers.Positions.ListHistory)
	mux.HandleFunc("GET /api/positions/history/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("POST /api/positions/{symbol}/close", handlers.Positions.ClosePosition)
	mux.HandleFunc("GET /api/events", handlers.Positions.ListEvents)
	mux.HandleFunc("GET /api/instruments", handlers.Positions.ListInstruments)
	if handlers.Journal != nil {
		mux.HandleFunc("GET /api/orders", handlers.Journal.ListOpenOrders)
		mux.HandleFunc("GET /api/orders/{id}", handlers.Journal.GetOrder)
		mux.HandleFunc("GET /api/audit", handlers.Journal.ListAudit)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	return h
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
