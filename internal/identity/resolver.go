package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	dErrors "vigil/pkg/domainerrors"
	"vigil/pkg/sentinel"
)

// Store is the user directory lookup the resolver needs.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
}

// Resolver normalizes the raw identifier clients send (email or UUID string)
// into the canonical user UUID. Resolution happens once, at the protocol
// boundary; everything past it carries only UUIDs.
type Resolver struct {
	users Store
}

func NewResolver(users Store) *Resolver {
	return &Resolver{users: users}
}

// Resolve maps a raw identifier to the canonical user ID. A parseable UUID is
// checked against the directory; anything else is treated as an email and
// looked up. Both forms resolve only to users that actually exist.
func (r *Resolver) Resolve(ctx context.Context, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "userId is required")
	}

	if id, err := uuid.Parse(raw); err == nil {
		if _, err := r.users.FindByID(ctx, id); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return uuid.Nil, dErrors.New(dErrors.CodeNotFound, "unknown user")
			}
			return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve user")
		}
		return id, nil
	}

	user, err := r.users.FindByEmail(ctx, strings.ToLower(raw))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return uuid.Nil, dErrors.New(dErrors.CodeNotFound, "unknown user")
		}
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve user")
	}
	return user.ID, nil
}

// DisplayName returns the user's display name, or an empty string when the
// user is unknown (callers render anonymous in that case).
func (r *Resolver) DisplayName(ctx context.Context, id uuid.UUID) (string, error) {
	user, err := r.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", nil
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user.DisplayName, nil
}
