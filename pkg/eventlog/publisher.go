package eventlog

import (
	"context"
	"log/slog"
	"time"
)

// Publisher accepts events from domain code without blocking it. Events are
// buffered and drained by a Worker; when the buffer is full the event is
// dropped and counted against the log, not the caller.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 128
	}
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit queues an event. Never blocks and never fails the caller.
func (p *Publisher) Emit(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case p.inbox <- ev:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "event log buffer full, dropping event",
				"kind", ev.Kind,
				"alert_id", ev.AlertID,
			)
		}
	}
	return nil
}

// Events exposes the drain side for a Worker.
func (p *Publisher) Events() <-chan Event {
	return p.inbox
}
