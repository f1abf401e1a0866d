package zone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vigil/internal/geo"
	dErrors "vigil/pkg/domainerrors"
	"vigil/pkg/sentinel"
)

// Store persists one zone per user with upsert semantics.
type Store interface {
	Put(ctx context.Context, zone *Zone) error
	FindByUser(ctx context.Context, userID uuid.UUID) (*Zone, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	All(ctx context.Context) ([]Zone, error)
}

// Service manages user zones and supplies the candidate set for fanout.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert creates or replaces the user's zone.
func (s *Service) Upsert(ctx context.Context, userID uuid.UUID, lat, lon, radiusM float64) (*Zone, error) {
	if userID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	candidate := geo.Zone{OwnerID: userID, CenterLat: lat, CenterLon: lon, RadiusM: radiusM}
	if !candidate.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("zone must have valid coordinates and radius between %d and %d meters", geo.MinRadiusM, geo.MaxRadiusM))
	}

	z := &Zone{
		ID:        uuid.New(),
		UserID:    userID,
		CenterLat: lat,
		CenterLon: lon,
		RadiusM:   radiusM,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.Put(ctx, z); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save zone")
	}

	if s.logger != nil {
		s.logger.Info("zone saved",
			"user_id", userID,
			"lat", lat,
			"lon", lon,
			"radius_m", radiusM,
		)
	}
	return z, nil
}

// Get returns the user's zone.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Zone, error) {
	z, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "zone not configured")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load zone")
	}
	return z, nil
}

// Delete removes the user's zone. Deleting an absent zone is not an error.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.DeleteByUser(ctx, userID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete zone")
	}
	return nil
}

// Candidates returns every configured zone as matcher geometry. Users without
// a zone are simply absent.
func (s *Service) Candidates(ctx context.Context) ([]geo.Zone, error) {
	zones, err := s.store.All(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list zones")
	}
	out := make([]geo.Zone, 0, len(zones))
	for i := range zones {
		out = append(out, zones[i].Geometry())
	}
	return out, nil
}
