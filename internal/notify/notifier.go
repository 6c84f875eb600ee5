// Package notify delivers trade alerts to chat channels. Alerts are filtered
// by event name so operators only receive the ones they subscribed to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/stochtrader/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Message is a rendered alert.
type Message struct {
	Title  string
	Body   string
	Fields []Field
	// Tone picks an accent colour on channels that support one.
	Tone Tone
}

// Field is a labelled value shown under the body.
type Field struct {
	Name  string
	Value string
}

// Tone classifies an alert.
type Tone int

const (
	ToneInfo Tone = iota
	TonePositive
	ToneNegative
)

// Notifier fans alerts out to every Sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only events listed in events are forwarded
// by Notify; an empty list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify sends msg when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event string, msg Message) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, msg)
}

// NotifyPosition renders a position event and sends it.
func (n *Notifier) NotifyPosition(ctx context.Context, ev domain.PositionEvent) error {
	return n.Notify(ctx, string(ev.Kind), PositionMessage(ev))
}

// dispatch delivers to every sender; one failing sender does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}
	return errors.Join(errs...)
}

// PositionMessage renders ev for humans.
func PositionMessage(ev domain.PositionEvent) Message {
	msg := Message{
		Fields: []Field{
			{Name: "Price", Value: ev.Price.String()},
			{Name: "Bar", Value: ev.BarTime.UTC().Format("2006-01-02 15:04:05")},
		},
	}
	switch ev.Kind {
	case domain.PositionOpened:
		msg.Title = fmt.Sprintf("%s %s opened", ev.Symbol, ev.Direction)
		msg.Body = fmt.Sprintf("Entered %s at %s.", ev.Direction, ev.Price)
		msg.Tone = ToneInfo
	case domain.PositionClosed:
		msg.Title = fmt.Sprintf("%s %s closed", ev.Symbol, ev.Direction)
		msg.Body = fmt.Sprintf("Exited at %s: %s.", ev.Price, ev.Reason)
		msg.Tone = ToneNegative
		if ev.Reason == "profit target" {
			msg.Tone = TonePositive
		}
	case domain.PositionStopMoved:
		msg.Title = fmt.Sprintf("%s stop moved", ev.Symbol)
		msg.Body = fmt.Sprintf("Trailing stop now %s.", ev.StopPrice)
		msg.Fields = append(msg.Fields, Field{Name: "Acceleration", Value: ev.Acceleration.String()})
	case domain.PositionExitsPlaced:
		msg.Title = fmt.Sprintf("%s exits placed", ev.Symbol)
		msg.Body = fmt.Sprintf("Stop %s, target %s.", ev.StopPrice, ev.ProfitPrice)
	default:
		msg.Title = fmt.Sprintf("%s %s", ev.Symbol, ev.Kind)
	}
	return msg
}
