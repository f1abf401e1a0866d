package alert

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"vigil/internal/fanout"
	dErrors "vigil/pkg/domainerrors"
	"vigil/pkg/eventlog"
	"vigil/pkg/sentinel"
)

// Store persists committed alerts.
type Store interface {
	Create(ctx context.Context, a *Alert) error
	FindByID(ctx context.Context, id uuid.UUID) (*Alert, error)
}

// Dispatcher runs fanout for a committed alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert fanout.Alert) (fanout.Report, error)
}

// Directory resolves a reporter's display name for non-anonymous alerts.
type Directory interface {
	DisplayName(ctx context.Context, id uuid.UUID) (string, error)
}

// EventLog records lifecycle events. Best effort; implementations never
// block.
type EventLog interface {
	Emit(ctx context.Context, ev eventlog.Event) error
}

// CreateInput is what the intake surface collects for a new alert.
type CreateInput struct {
	CreatedBy   uuid.UUID
	Category    string
	Title       string
	Description string
	Latitude    float64
	Longitude   float64
	Anonymous   bool
}

// Service commits alerts and hands them to fanout. The commit is the
// transaction boundary: once the alert is stored, distribution problems are
// logged but never surfaced to the reporter.
type Service struct {
	store      Store
	dispatcher Dispatcher
	directory  Directory
	events     EventLog
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

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

func New(store Store, dispatcher Dispatcher, directory Directory, opts ...Option) *Service {
	s := &Service{
		store:      store,
		dispatcher: dispatcher,
		directory:  directory,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates, commits, and dispatches a new alert. The returned alert
// is always committed; the dispatch report reflects best-effort distribution.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Alert, fanout.Report, error) {
	if err := validate(in); err != nil {
		return nil, fanout.Report{}, err
	}

	a := &Alert{
		ID:          uuid.New(),
		CreatedBy:   in.CreatedBy,
		Category:    strings.ToUpper(strings.TrimSpace(in.Category)),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Anonymous:   in.Anonymous,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, fanout.Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save alert")
	}
	s.emit(ctx, eventlog.Event{
		Kind:    eventlog.KindAlertCreated,
		AlertID: a.ID,
		UserID:  a.CreatedBy,
		Metadata: map[string]string{
			"category": a.Category,
		},
	})

	report := s.dispatch(ctx, a)
	s.emit(ctx, eventlog.Event{
		Kind:    eventlog.KindAlertDispatched,
		AlertID: a.ID,
		Metadata: map[string]string{
			"matched":  strconv.Itoa(report.Matched),
			"recorded": strconv.Itoa(report.Recorded),
			"pushed":   strconv.Itoa(report.Pushed),
		},
	})
	return a, report, nil
}

func (s *Service) emit(ctx context.Context, ev eventlog.Event) {
	if s.events == nil {
		return
	}
	_ = s.events.Emit(ctx, ev)
}

// Get returns a committed alert.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Alert, error) {
	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "alert not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load alert")
	}
	return a, nil
}

func (s *Service) dispatch(ctx context.Context, a *Alert) fanout.Report {
	creatorName := ""
	if !a.Anonymous {
		name, err := s.directory.DisplayName(ctx, a.CreatedBy)
		if err != nil {
			// Missing name degrades to an anonymous-looking push.
			if s.logger != nil {
				s.logger.WarnContext(ctx, "could not resolve reporter name",
					"alert_id", a.ID,
					"user_id", a.CreatedBy,
					"error", err.Error(),
				)
			}
		} else {
			creatorName = name
		}
	}

	report, err := s.dispatcher.Dispatch(ctx, fanout.Alert{
		ID:          a.ID,
		Title:       a.Title,
		Category:    a.Category,
		Description: a.Description,
		Latitude:    a.Latitude,
		Longitude:   a.Longitude,
		CreatedBy:   a.CreatedBy,
		CreatorName: creatorName,
		CreatedAt:   a.CreatedAt,
	})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "alert committed but dispatch failed",
			"alert_id", a.ID,
			"error", err.Error(),
		)
	}
	return report
}

func validate(in CreateInput) error {
	switch {
	case in.CreatedBy == uuid.Nil:
		return dErrors.New(dErrors.CodeValidation, "reporter is required")
	case strings.TrimSpace(in.Title) == "":
		return dErrors.New(dErrors.CodeValidation, "title is required")
	case strings.TrimSpace(in.Category) == "":
		return dErrors.New(dErrors.CodeValidation, "category is required")
	case in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180:
		return dErrors.New(dErrors.CodeValidation, "location out of range")
	}
	return nil
}
