// Package fanout turns one committed alert into per-recipient notification
// records and best-effort live pushes. The ledger write is the system of
// record; the push is an optimization that may fail without consequence.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"vigil/internal/geo"
	"vigil/internal/notification"
	"vigil/internal/platform/metrics"
)

const defaultConcurrency = 8

// ZoneSource supplies the candidate zones considered for a dispatch.
type ZoneSource interface {
	Candidates(ctx context.Context) ([]geo.Zone, error)
}

// Ledger is the slice of the notification service fanout needs. Fanout only
// ever appends: status stays QUEUED until the recipient's client acknowledges
// through the notification API, regardless of how the live push went.
type Ledger interface {
	Create(ctx context.Context, alertID, userID uuid.UUID, channel notification.Channel) (*notification.Notification, error)
}

// Presence pushes a payload to an identity's live sessions on this instance.
type Presence interface {
	Send(identity uuid.UUID, payload []byte) bool
}

// Publisher relays a dispatch to peer instances whose sessions this instance
// cannot reach. Optional; single-instance deployments run without one.
type Publisher interface {
	Publish(ctx context.Context, ev BridgeEvent) error
}

// Report summarizes one dispatch.
type Report struct {
	// Matched is how many recipients the geometry selected.
	Matched int
	// Recorded is how many notification records were created.
	Recorded int
	// Pushed is how many recipients took a live push on this instance.
	Pushed int
	// Failed is how many recipients could not get a notification record.
	Failed int
}

// Engine runs alert dispatch. One instance is created at startup.
type Engine struct {
	zones       ZoneSource
	matcher     *geo.Matcher
	ledger      Ledger
	presence    Presence
	publisher   Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	concurrency int
}

type Option func(e *Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithPublisher enables cross-instance relay of dispatches.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithConcurrency caps how many recipients are processed in parallel.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func New(zones ZoneSource, matcher *geo.Matcher, ledger Ledger, presence Presence, opts ...Option) *Engine {
	e := &Engine{
		zones:       zones,
		matcher:     matcher,
		ledger:      ledger,
		presence:    presence,
		tracer:      otel.Tracer("vigil/fanout"),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch fans one alert out to every user whose zone covers its location.
// Recipients are independent: a failure or panic while handling one recipient
// never blocks the rest. Dispatch returns an error only when the candidate
// set or the push frame cannot be produced at all.
func (e *Engine) Dispatch(ctx context.Context, alert Alert) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "fanout.Dispatch",
		trace.WithAttributes(attribute.String("alert.id", alert.ID.String())))
	defer span.End()

	if e.metrics != nil {
		e.metrics.AlertsDispatched.Inc()
	}

	candidates, err := e.zones.Candidates(ctx)
	if err != nil {
		span.RecordError(err)
		return Report{}, fmt.Errorf("load zone candidates: %w", err)
	}

	recipients := e.matcher.Match(alert.Latitude, alert.Longitude, candidates, alert.CreatedBy)
	span.SetAttributes(attribute.Int("fanout.matched", len(recipients)))
	if len(recipients) == 0 {
		return Report{}, nil
	}

	frame, err := alert.Frame()
	if err != nil {
		span.RecordError(err)
		return Report{}, fmt.Errorf("encode alert frame: %w", err)
	}

	var recorded, pushed, failed atomic.Int64
	relayed := make([]BridgeRecipient, len(recipients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, userID := range recipients {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					failed.Add(1)
					if e.logger != nil {
						e.logger.ErrorContext(gctx, "panic during recipient fanout",
							"alert_id", alert.ID,
							"user_id", userID,
							"panic", rec,
						)
					}
				}
			}()
			e.deliver(gctx, alert, userID, frame, &relayed[i], &recorded, &pushed, &failed)
			return nil
		})
	}
	// Group funcs never return errors; per-recipient failures are counted.
	_ = g.Wait()

	e.relay(ctx, frame, relayed)

	report := Report{
		Matched:  len(recipients),
		Recorded: int(recorded.Load()),
		Pushed:   int(pushed.Load()),
		Failed:   int(failed.Load()),
	}
	span.SetAttributes(
		attribute.Int("fanout.recorded", report.Recorded),
		attribute.Int("fanout.pushed", report.Pushed),
		attribute.Int("fanout.failed", report.Failed),
	)
	if e.logger != nil {
		e.logger.InfoContext(ctx, "alert dispatched",
			"alert_id", alert.ID,
			"matched", report.Matched,
			"recorded", report.Recorded,
			"pushed", report.Pushed,
			"failed", report.Failed,
		)
	}
	return report, nil
}

// deliver handles one recipient: durable record first, live push second. A
// recipient without a record gets no push; the record is what a reconnecting
// client replays from.
func (e *Engine) deliver(ctx context.Context, alert Alert, userID uuid.UUID, frame []byte,
	relay *BridgeRecipient, recorded, pushed, failed *atomic.Int64) {

	n, err := e.ledger.Create(ctx, alert.ID, userID, notification.ChannelPush)
	if err != nil {
		failed.Add(1)
		if e.metrics != nil {
			e.metrics.NotificationCreateFailures.Inc()
		}
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "failed to record notification",
				"alert_id", alert.ID,
				"user_id", userID,
				"error", err.Error(),
			)
		}
		return
	}
	recorded.Add(1)
	*relay = BridgeRecipient{UserID: userID, NotificationID: n.ID}

	if e.metrics != nil {
		e.metrics.LivePushAttempts.Inc()
	}
	if !e.presence.Send(userID, frame) {
		// Offline here. A peer instance may still reach them via the bridge;
		// otherwise the QUEUED record waits for reconnect.
		return
	}
	pushed.Add(1)
	if e.metrics != nil {
		e.metrics.LivePushDelivered.Inc()
	}
	// A push landing on a socket is not a status transition. The record stays
	// QUEUED until the client acknowledges through the notification API.
}

// relay hands recipients with a durable record to peer instances.
func (e *Engine) relay(ctx context.Context, frame []byte, relayed []BridgeRecipient) {
	if e.publisher == nil {
		return
	}
	recipients := make([]BridgeRecipient, 0, len(relayed))
	for _, r := range relayed {
		if r.NotificationID != uuid.Nil {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return
	}
	if err := e.publisher.Publish(ctx, BridgeEvent{Frame: frame, Recipients: recipients}); err != nil {
		if e.logger != nil {
			e.logger.WarnContext(ctx, "failed to relay dispatch to peers", "error", err.Error())
		}
	}
}
