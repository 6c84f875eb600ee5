package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 15 * time.Second
)

type subscribeCommand struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// WSBarFeedConfig configures a WSBarFeed.
type WSBarFeedConfig struct {
	URL          string
	Symbols      []string
	PingInterval time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// WSBarFeed reads JSON bars from a WebSocket endpoint. It subscribes to the
// configured symbols on every connection and reconnects with exponential
// backoff until its context ends.
type WSBarFeed struct {
	cfg    WSBarFeedConfig
	wanted map[string]bool
	onBar  BarFunc
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewWSBarFeed creates a WSBarFeed.
func NewWSBarFeed(cfg WSBarFeedConfig, onBar BarFunc, logger *slog.Logger) *WSBarFeed {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 60 * time.Second
	}
	return &WSBarFeed{
		cfg:    cfg,
		wanted: symbolSet(cfg.Symbols),
		onBar:  onBar,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: logger.With(slog.String("component", "ws_bar_feed")),
	}
}

// Run blocks until ctx is cancelled.
func (f *WSBarFeed) Run(ctx context.Context) error {
	b := &backoff.Backoff{Min: f.cfg.ReconnectMin, Max: f.cfg.ReconnectMax, Factor: 2, Jitter: true}
	for {
		connected, err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			b.Reset()
		}
		wait := b.Duration()
		f.logger.Warn("bar feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// runConnection serves one connection. connected reports whether the dial
// and subscription succeeded.
func (f *WSBarFeed) runConnection(ctx context.Context) (connected bool, err error) {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("feed/ws: connect: %w", err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCommand{Type: "subscribe", Symbols: f.cfg.Symbols}); err != nil {
		return false, fmt.Errorf("feed/ws: subscribe: %w", err)
	}
	f.logger.Info("bar feed subscribed", slog.Any("symbols", f.cfg.Symbols))

	pongWait := 2 * f.cfg.PingInterval
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go f.keepAlive(ctx, conn, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, fmt.Errorf("feed/ws: read: %w", errors.Join(domain.ErrWSDisconnect, err))
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		bar, err := DecodeBar(msg)
		if errors.Is(err, errNotBar) {
			continue
		}
		if err != nil {
			f.logger.Warn("dropping malformed bar", slog.String("error", err.Error()))
			continue
		}
		if len(f.wanted) > 0 && !f.wanted[bar.Symbol] {
			continue
		}
		if err := f.onBar(ctx, bar); err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			f.logger.Warn("bar delivery failed",
				slog.String("symbol", bar.Symbol),
				slog.Time("bar_time", bar.Time),
				slog.String("error", err.Error()),
			)
		}
	}
}

// keepAlive pings the peer and closes conn when ctx ends so the blocked
// read returns.
func (f *WSBarFeed) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
