package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vigil/internal/notification"
	"vigil/internal/platform/metrics"
	"vigil/internal/platform/middleware"
	"vigil/internal/transport/http/shared"
	dErrors "vigil/pkg/domainerrors"
)

// Service defines the ledger operations the HTTP surface needs.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page, size int) ([]notification.Notification, int, error)
	ListQueued(ctx context.Context, channel notification.Channel) ([]notification.Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	CountUndelivered(ctx context.Context, userID uuid.UUID) (int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Handler exposes the notification ledger over HTTP.
type Handler struct {
	logger        *slog.Logger
	notifications Service
	metrics       *metrics.Metrics
	jwtValidator  middleware.JWTValidator
}

func New(
	notifications Service,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:        logger,
		notifications: notifications,
		metrics:       m,
		jwtValidator:  jwtValidator,
	}
}

// Register mounts the notification routes on the given router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	router.Get("/me", h.handleListMine)
	router.Get("/me/undelivered/count", h.handleCountUndelivered)
	router.Get("/me/unread/count", h.handleCountUnread)
	router.Post("/read-all", h.handleReadAll)
	router.Get("/queued", h.handleListQueued)
	router.Get("/{id}", h.handleGet)
	router.Put("/{id}/sent", h.statusHandler(h.notifications.MarkSent))
	router.Put("/{id}/delivered", h.statusHandler(h.notifications.MarkDelivered))
	router.Put("/{id}/failed", h.statusHandler(h.notifications.MarkFailed))
	router.Put("/{id}/read", h.statusHandler(h.notifications.MarkRead))
	router.Delete("/{id}", h.handleDelete)

	r.Mount("/api/notifications", router)
}

type notificationResponse struct {
	ID          uuid.UUID  `json:"id"`
	AlertID     uuid.UUID  `json:"alertId"`
	UserID      uuid.UUID  `json:"userId"`
	Channel     string     `json:"channel"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

type pageResponse struct {
	Items []notificationResponse `json:"items"`
	Page  int                    `json:"page"`
	Size  int                    `json:"size"`
	Total int                    `json:"total"`
}

type countResponse struct {
	Count int `json:"count"`
}

func toResponse(n *notification.Notification) notificationResponse {
	return notificationResponse{
		ID:          n.ID,
		AlertID:     n.AlertID,
		UserID:      n.UserID,
		Channel:     string(n.Channel),
		Status:      string(n.Status),
		CreatedAt:   n.CreatedAt,
		SentAt:      n.SentAt,
		DeliveredAt: n.DeliveredAt,
		ReadAt:      n.ReadAt,
	}
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	page := queryInt(r, "page", 1)
	size := queryInt(r, "size", 20)

	items, total, err := h.notifications.ListByUser(ctx, userID, page, size)
	if err != nil {
		h.logError(ctx, "failed to list notifications", err)
		shared.WriteError(w, err)
		return
	}

	resp := pageResponse{Items: make([]notificationResponse, 0, len(items)), Page: page, Size: size, Total: total}
	for i := range items {
		resp.Items = append(resp.Items, toResponse(&items[i]))
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.loadOwned(ctx, r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(n))
}

// statusHandler wraps the four status mutations, which differ only in the
// service call.
func (h *Handler) statusHandler(mutate func(context.Context, uuid.UUID) (*notification.Notification, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		n, err := h.loadOwned(ctx, r)
		if err != nil {
			shared.WriteError(w, err)
			return
		}

		updated, err := mutate(ctx, n.ID)
		if err != nil {
			if !dErrors.HasCode(err, dErrors.CodeInvalidState) {
				h.logError(ctx, "failed to update notification status", err)
			}
			shared.WriteError(w, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, toResponse(updated))
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.loadOwned(ctx, r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.notifications.SoftDelete(ctx, n.ID); err != nil {
		h.logError(ctx, "failed to delete notification", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReadAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := h.notifications.MarkAllRead(ctx, middleware.GetUserID(ctx))
	if err != nil {
		h.logError(ctx, "failed to mark notifications read", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *Handler) handleCountUndelivered(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := h.notifications.CountUndelivered(ctx, middleware.GetUserID(ctx))
	if err != nil {
		h.logError(ctx, "failed to count notifications", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *Handler) handleCountUnread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := h.notifications.CountUnread(ctx, middleware.GetUserID(ctx))
	if err != nil {
		h.logError(ctx, "failed to count notifications", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *Handler) handleListQueued(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel := notification.Channel(r.URL.Query().Get("channel"))

	items, err := h.notifications.ListQueued(ctx, channel)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	resp := make([]notificationResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

// loadOwned resolves the {id} path param and checks the record belongs to the
// authenticated user. Foreign records read as not found so ids don't leak.
func (h *Handler) loadOwned(ctx context.Context, r *http.Request) (*notification.Notification, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid notification id")
	}
	n, err := h.notifications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != middleware.GetUserID(ctx) {
		return nil, dErrors.New(dErrors.CodeNotFound, "notification not found")
	}
	return n, nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err.Error(),
		"request_id", middleware.GetRequestID(ctx),
	)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
