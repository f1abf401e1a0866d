package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	UserID uuid.UUID
	Email  string
}

type contextKeyUserID struct{}
type contextKeyEmail struct{}

// Exported for use in handlers and tests.
var (
	ContextKeyUserID = contextKeyUserID{}
	ContextKeyEmail  = contextKeyEmail{}
)

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) uuid.UUID {
	userID, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}

// GetEmail retrieves the authenticated email from the context.
func GetEmail(ctx context.Context) string {
	email, ok := ctx.Value(ContextKeyEmail).(string)
	if !ok {
		return ""
	}
	return email
}

// WithUser injects an authenticated user into a context. Useful for service
// unit tests that don't run the full HTTP middleware chain.
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated user in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			after, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(w, r, logger, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(after)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w, r, logger, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ContextKeyEmail, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, logger *slog.Logger, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, err := w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`)); err != nil {
		logger.ErrorContext(r.Context(), "failed to write unauthorized response",
			"error", err,
			"request_id", GetRequestID(r.Context()),
		)
	}
}
