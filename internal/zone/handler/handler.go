package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vigil/internal/platform/middleware"
	"vigil/internal/transport/http/shared"
	"vigil/internal/zone"
	dErrors "vigil/pkg/domainerrors"
)

// Service defines the zone operations the HTTP surface needs.
type Service interface {
	Upsert(ctx context.Context, userID uuid.UUID, lat, lon, radiusM float64) (*zone.Zone, error)
	Get(ctx context.Context, userID uuid.UUID) (*zone.Zone, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

// Handler exposes the per-user alert zone over HTTP.
type Handler struct {
	logger       *slog.Logger
	zones        Service
	jwtValidator middleware.JWTValidator
}

func New(zones Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, zones: zones, jwtValidator: jwtValidator}
}

// Register mounts the zone routes on the given router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	router.Post("/", h.handleUpsert)
	router.Get("/me", h.handleGet)
	router.Delete("/me", h.handleDelete)

	r.Mount("/api/zones", router)
}

type upsertRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusM   float64 `json:"radiusMeters"`
}

type zoneResponse struct {
	ID        uuid.UUID `json:"id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	RadiusM   float64   `json:"radiusMeters"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toResponse(z *zone.Zone) zoneResponse {
	return zoneResponse{
		ID:        z.ID,
		Latitude:  z.CenterLat,
		Longitude: z.CenterLon,
		RadiusM:   z.RadiusM,
		UpdatedAt: z.UpdatedAt,
	}
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	z, err := h.zones.Upsert(ctx, middleware.GetUserID(ctx), req.Latitude, req.Longitude, req.RadiusM)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeValidation) {
			h.logger.ErrorContext(ctx, "failed to save zone",
				"error", err.Error(),
				"request_id", middleware.GetRequestID(ctx),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(z))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	z, err := h.zones.Get(ctx, middleware.GetUserID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(z))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.zones.Delete(ctx, middleware.GetUserID(ctx)); err != nil {
		h.logger.ErrorContext(ctx, "failed to delete zone",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
