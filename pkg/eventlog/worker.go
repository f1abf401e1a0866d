package eventlog

import (
	"context"
	"log/slog"
)

// Worker drains published events into a sink. Sink failures are logged and
// skipped; the stream is best effort by contract.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.inbox:
			if err := w.sink.Append(ctx, ev); err != nil && w.logger != nil {
				w.logger.ErrorContext(ctx, "failed to append event",
					"kind", ev.Kind,
					"alert_id", ev.AlertID,
					"error", err.Error(),
				)
			}
		}
	}
}
