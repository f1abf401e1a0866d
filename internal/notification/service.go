package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vigil/internal/platform/metrics"
	dErrors "vigil/pkg/domainerrors"
	"vigil/pkg/eventlog"
	"vigil/pkg/sentinel"
)

// Store is the durable ledger behind the service. Listing excludes
// soft-deleted records and orders by creation time descending.
//
// Status writes go through UpdateStatus, a compare-and-set on the prior
// status: the write lands only if the stored status still equals prior,
// otherwise ErrInvalidState. UpdateMarks stamps the orthogonal read/delete
// timestamps and never touches status, so neither path can move the state
// machine backward.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*Notification, error)
	UpdateStatus(ctx context.Context, n *Notification, prior Status) error
	UpdateMarks(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, page, size int) ([]Notification, int, error)
	ListQueued(ctx context.Context, channel Channel) ([]Notification, error)
	CountUndelivered(ctx context.Context, userID uuid.UUID) (int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, readAt time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// EventLog records ledger lifecycle events. Best effort; implementations
// never block.
type EventLog interface {
	Emit(ctx context.Context, ev eventlog.Event) error
}

// Service owns every status mutation of the ledger so the forward-only state
// machine is enforced in exactly one place.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  EventLog
	now     func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides time. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithEventLog enables lifecycle event emission.
func WithEventLog(events EventLog) Option {
	return func(s *Service) {
		s.events = events
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create appends a QUEUED notification for the recipient. This is the
// durability step of fanout: it must succeed even if the recipient is
// offline or the live push later fails.
func (s *Service) Create(ctx context.Context, alertID, userID uuid.UUID, channel Channel) (*Notification, error) {
	if alertID == uuid.Nil || userID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "alert id and user id are required")
	}
	if !channel.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown channel %q", channel))
	}

	n := &Notification{
		ID:        uuid.New(),
		AlertID:   alertID,
		UserID:    userID,
		Channel:   channel,
		Status:    StatusQueued,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create notification")
	}
	if s.metrics != nil {
		s.metrics.NotificationsCreated.Inc()
	}
	s.emit(ctx, eventlog.Event{
		Kind:    eventlog.KindNotificationCreated,
		AlertID: n.AlertID,
		UserID:  n.UserID,
		Metadata: map[string]string{
			"channel": string(n.Channel),
		},
	})
	return n, nil
}

// MarkSent transitions QUEUED -> SENT.
func (s *Service) MarkSent(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return s.transition(ctx, id, StatusSent, func(n *Notification, at time.Time) {
		n.SentAt = &at
	})
}

// MarkDelivered records the recipient's acknowledgment.
func (s *Service) MarkDelivered(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return s.transition(ctx, id, StatusDelivered, func(n *Notification, at time.Time) {
		n.DeliveredAt = &at
	})
}

// MarkFailed transitions QUEUED|SENT -> FAILED.
func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return s.transition(ctx, id, StatusFailed, func(n *Notification, at time.Time) {})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, next Status, stamp func(*Notification, time.Time)) (*Notification, error) {
	n, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.Status.CanTransitionTo(next) {
		return nil, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("cannot transition notification from %s to %s", n.Status, next))
	}

	prior := n.Status
	at := s.now().UTC()
	n.Status = next
	stamp(n, at)
	if err := s.store.UpdateStatus(ctx, n, prior); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// Lost the race to a concurrent transition; the stored status
			// already moved past prior.
			return nil, dErrors.New(dErrors.CodeInvalidState,
				fmt.Sprintf("notification is no longer %s, cannot transition to %s", prior, next))
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "notification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update notification")
	}

	if s.logger != nil {
		s.logger.Info("notification status changed",
			"notification_id", n.ID,
			"user_id", n.UserID,
			"status", n.Status,
		)
	}
	s.emit(ctx, eventlog.Event{
		Kind:    eventlog.KindNotificationStatusChanged,
		AlertID: n.AlertID,
		UserID:  n.UserID,
		Metadata: map[string]string{
			"notification_id": n.ID.String(),
			"from":            string(prior),
			"to":              string(n.Status),
		},
	})
	return n, nil
}

func (s *Service) emit(ctx context.Context, ev eventlog.Event) {
	if s.events == nil {
		return
	}
	_ = s.events.Emit(ctx, ev)
}

// MarkRead stamps the read timestamp. Orthogonal to status; idempotent.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (*Notification, error) {
	n, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.ReadAt == nil {
		at := s.now().UTC()
		n.ReadAt = &at
		if err := s.store.UpdateMarks(ctx, n); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update notification")
		}
	}
	return n, nil
}

// MarkAllRead stamps every unread notification of the user. Returns how many
// records changed.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.store.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark notifications read")
	}
	return count, nil
}

// SoftDelete hides the notification from listings without losing the record.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) error {
	n, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if n.DeletedAt == nil {
		at := s.now().UTC()
		n.DeletedAt = &at
		if err := s.store.UpdateMarks(ctx, n); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete notification")
		}
	}
	return nil
}

// Get returns a notification by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Notification, error) {
	return s.load(ctx, id)
}

// ListByUser pages through the user's non-deleted notifications, newest
// first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, page, size int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	items, total, err := s.store.ListByUser(ctx, userID, page, size)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	return items, total, nil
}

// ListQueued returns QUEUED notifications, optionally filtered by channel.
// Used by out-of-band delivery workers (email/SMS dispatchers).
func (s *Service) ListQueued(ctx context.Context, channel Channel) ([]Notification, error) {
	if channel != "" && !channel.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown channel %q", channel))
	}
	items, err := s.store.ListQueued(ctx, channel)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list queued notifications")
	}
	return items, nil
}

// CountUndelivered counts QUEUED and SENT notifications for the user.
func (s *Service) CountUndelivered(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.store.CountUndelivered(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count notifications")
	}
	return count, nil
}

// CountUnread counts notifications without a read timestamp.
func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count notifications")
	}
	return count, nil
}

// PurgeOlderThan hard-deletes notifications created before the retention
// window. Run from a periodic job, not a request path.
func (s *Service) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	count, err := s.store.DeleteOlderThan(ctx, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge notifications")
	}
	if s.logger != nil && count > 0 {
		s.logger.Info("purged old notifications", "count", count)
	}
	return count, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Notification, error) {
	n, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "notification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load notification")
	}
	return n, nil
}
