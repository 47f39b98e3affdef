// Package notify delivers notification requests emitted by the scheduling
// core. The core only sees the Dispatcher port; delivery failures are logged
// by the sinks and never reach the caller.
package notify

import (
	"context"
	"log/slog"
)

type Kind string

const (
	KindEventInvitation Kind = "event_invitation"
	KindBestDateChanged Kind = "best_date_changed"
)

// Message describes one notification for one recipient.
type Message struct {
	RecipientID int64
	Kind        Kind
	EventID     int64
	Title       string
	Data        map[string]any
}

// payload is the JSON body shared by the inbox and realtime sinks.
func (m Message) payload() map[string]any {
	p := make(map[string]any, len(m.Data)+2)
	for k, v := range m.Data {
		p[k] = v
	}
	p["event_id"] = m.EventID
	p["title"] = m.Title
	return p
}

// Dispatcher accepts notification requests. Dispatch must not block on delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg Message)

func (f DispatcherFunc) Dispatch(ctx context.Context, msg Message) { f(ctx, msg) }

// Discard drops every message.
var Discard Dispatcher = DispatcherFunc(func(context.Context, Message) {})

// Fanout hands each message to every sink in order.
type Fanout []Dispatcher

func (f Fanout) Dispatch(ctx context.Context, msg Message) {
	for _, d := range f {
		d.Dispatch(ctx, msg)
	}
}

// Logged wraps d and logs each message at debug level before delivery.
func Logged(d Dispatcher, logger *slog.Logger) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, msg Message) {
		logger.Debug("dispatch notification",
			"kind", msg.Kind, "recipient_id", msg.RecipientID, "event_id", msg.EventID)
		d.Dispatch(ctx, msg)
	})
}
