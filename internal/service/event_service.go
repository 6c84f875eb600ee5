package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// PositionNotifier sends human-facing alerts for position events.
type PositionNotifier interface {
	NotifyPosition(ctx context.Context, ev domain.PositionEvent) error
}

// EventServiceConfig collects the optional outputs of an EventService.
type EventServiceConfig struct {
	Bus           domain.SignalBus
	Positions     domain.PositionStore
	Audit         domain.AuditStore
	Notifier      PositionNotifier
	Journal       domain.BlobWriter
	JournalPrefix string
	Strategy      string
}

// multipartThreshold matches the smallest S3 multipart part.
const multipartThreshold int64 = 5 * 1024 * 1024

type dayBuffer struct {
	day string
	buf bytes.Buffer
}

// EventService fans position events out to the bus, the position store,
// the notifier, and a per-day JSON Lines journal kept in object storage.
type EventService struct {
	cfg    EventServiceConfig
	logger *slog.Logger

	mu   sync.Mutex
	days map[string]*dayBuffer

	wg sync.WaitGroup
}

// NewEventService creates an EventService. Nil outputs are skipped.
func NewEventService(cfg EventServiceConfig, logger *slog.Logger) *EventService {
	if cfg.JournalPrefix == "" {
		cfg.JournalPrefix = "sessions"
	}
	return &EventService{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "event_service")),
		days:   make(map[string]*dayBuffer),
	}
}

// OnPositionEvent implements strategy.EventSink.
func (s *EventService) OnPositionEvent(ctx context.Context, ev domain.PositionEvent) {
	line, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal event failed", slog.String("error", err.Error()))
		return
	}

	if s.cfg.Bus != nil {
		if err := s.cfg.Bus.Publish(ctx, "positions", line); err != nil {
			s.logger.WarnContext(ctx, "publish event failed",
				slog.String("position_id", ev.PositionID),
				slog.String("error", err.Error()),
			)
		}
	}

	switch ev.Kind {
	case domain.PositionOpened:
		s.storeOpened(ctx, ev)
		s.notify(ctx, ev)
	case domain.PositionClosed:
		s.storeClosed(ctx, ev)
		s.notify(ctx, ev)
	}

	if s.cfg.Audit != nil {
		detail := map[string]any{
			"position_id": ev.PositionID,
			"symbol":      ev.Symbol,
			"direction":   ev.Direction.String(),
			"price":       ev.Price.String(),
		}
		if ev.Reason != "" {
			detail["reason"] = ev.Reason
		}
		if err := s.cfg.Audit.Log(ctx, string(ev.Kind), detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	s.journal(ctx, ev, line)
}

func (s *EventService) storeOpened(ctx context.Context, ev domain.PositionEvent) {
	if s.cfg.Positions == nil {
		return
	}
	pos := domain.Position{
		ID:         ev.PositionID,
		Symbol:     ev.Symbol,
		Direction:  ev.Direction,
		EntryPrice: ev.Price,
		Status:     domain.PositionStatusOpen,
		Strategy:   s.cfg.Strategy,
		OpenedAt:   ev.BarTime,
	}
	if err := s.cfg.Positions.Create(ctx, pos); err != nil {
		s.logger.WarnContext(ctx, "store position failed",
			slog.String("position_id", ev.PositionID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *EventService) storeClosed(ctx context.Context, ev domain.PositionEvent) {
	if s.cfg.Positions == nil {
		return
	}
	if err := s.cfg.Positions.Close(ctx, ev.PositionID, ev.Price, ev.Reason); err != nil {
		s.logger.WarnContext(ctx, "close stored position failed",
			slog.String("position_id", ev.PositionID),
			slog.String("error", err.Error()),
		)
	}
}

// notify runs off the caller's goroutine so a slow chat API cannot stall
// bar processing.
func (s *EventService) notify(ctx context.Context, ev domain.PositionEvent) {
	if s.cfg.Notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.cfg.Notifier.NotifyPosition(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("event", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// journal appends line to the symbol's buffer for the bar's UTC day. When the
// day changes, the previous day is uploaded in the background.
func (s *EventService) journal(ctx context.Context, ev domain.PositionEvent, line []byte) {
	if s.cfg.Journal == nil {
		return
	}
	day := ev.BarTime.UTC().Format("2006-01-02")

	s.mu.Lock()
	cur := s.days[ev.Symbol]
	var done *dayBuffer
	if cur == nil || cur.day != day {
		if cur != nil && cur.buf.Len() > 0 {
			done = cur
		}
		cur = &dayBuffer{day: day}
		s.days[ev.Symbol] = cur
	}
	cur.buf.Write(line)
	cur.buf.WriteByte('\n')
	s.mu.Unlock()

	if done != nil {
		ctx = context.WithoutCancel(ctx)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.upload(ctx, ev.Symbol, done); err != nil {
				s.logger.ErrorContext(ctx, "journal upload failed", slog.String("error", err.Error()))
			}
		}()
	}
}

// Flush waits for background work and uploads every buffered day.
func (s *EventService) Flush(ctx context.Context) error {
	s.wg.Wait()

	s.mu.Lock()
	pending := s.days
	s.days = make(map[string]*dayBuffer)
	s.mu.Unlock()

	var errs []error
	for symbol, d := range pending {
		if d.buf.Len() == 0 {
			continue
		}
		if err := s.upload(ctx, symbol, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JournalPath is the object key for one symbol's trading day.
func (s *EventService) JournalPath(symbol, day string) string {
	return path.Join(s.cfg.JournalPrefix, symbol, day+".jsonl")
}

func (s *EventService) upload(ctx context.Context, symbol string, d *dayBuffer) error {
	key := s.JournalPath(symbol, d.day)
	body := bytes.NewReader(d.buf.Bytes())
	var err error
	if int64(d.buf.Len()) > multipartThreshold {
		err = s.cfg.Journal.PutMultipart(ctx, key, body, multipartThreshold)
	} else {
		err = s.cfg.Journal.Put(ctx, key, body, "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("event_service: upload %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "journal uploaded",
		slog.String("key", key),
		slog.Int("bytes", d.buf.Len()),
	)
	return nil
}
