package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vigil/internal/alert"
	"vigil/internal/fanout"
	"vigil/internal/platform/middleware"
	"vigil/internal/transport/http/shared"
	dErrors "vigil/pkg/domainerrors"
)

// Service defines the alert operations the HTTP surface needs.
type Service interface {
	Create(ctx context.Context, in alert.CreateInput) (*alert.Alert, fanout.Report, error)
	Get(ctx context.Context, id uuid.UUID) (*alert.Alert, error)
}

// Handler exposes alert intake over HTTP.
type Handler struct {
	logger       *slog.Logger
	alerts       Service
	jwtValidator middleware.JWTValidator
}

func New(alerts Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, alerts: alerts, jwtValidator: jwtValidator}
}

// Register mounts the alert routes on the given router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	router.Post("/", h.handleCreate)
	router.Get("/{id}", h.handleGet)

	r.Mount("/api/alerts", router)
}

type createRequest struct {
	Category    string  `json:"category"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Anonymous   bool    `json:"anonymous"`
}

type alertResponse struct {
	ID          uuid.UUID `json:"id"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Anonymous   bool      `json:"anonymous"`
	CreatedAt   time.Time `json:"createdAt"`
}

type createResponse struct {
	alertResponse
	// NotifiedUsers mirrors what the reporter sees in the app: how many
	// people in range got a notification record.
	NotifiedUsers int `json:"notifiedUsers"`
}

func toResponse(a *alert.Alert) alertResponse {
	return alertResponse{
		ID:          a.ID,
		Category:    a.Category,
		Title:       a.Title,
		Description: a.Description,
		Latitude:    a.Latitude,
		Longitude:   a.Longitude,
		Anonymous:   a.Anonymous,
		CreatedAt:   a.CreatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	a, report, err := h.alerts.Create(ctx, alert.CreateInput{
		CreatedBy:   middleware.GetUserID(ctx),
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Anonymous:   req.Anonymous,
	})
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeValidation) {
			h.logger.ErrorContext(ctx, "failed to create alert",
				"error", err.Error(),
				"request_id", middleware.GetRequestID(ctx),
			)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, createResponse{
		alertResponse: toResponse(a),
		NotifiedUsers: report.Recorded,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid alert id"))
		return
	}

	a, err := h.alerts.Get(ctx, id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(a))
}
