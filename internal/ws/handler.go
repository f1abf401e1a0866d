package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vigil/internal/platform/metrics"
	"vigil/internal/platform/middleware"
	"vigil/internal/registry"
	dErrors "vigil/pkg/domainerrors"
	"vigil/pkg/eventlog"
)

// Resolver turns the raw userId a client sends into the canonical identity.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (uuid.UUID, error)
}

// Presence is the slice of the registry the protocol handler needs.
type Presence interface {
	Register(identity uuid.UUID, sessionID string, sender registry.Sender)
	Unregister(identity uuid.UUID, sessionID string)
}

// EventLog records subscription lifecycle events. Best effort; implementations
// never block.
type EventLog interface {
	Emit(ctx context.Context, ev eventlog.Event) error
}

// Handler upgrades HTTP connections and speaks the alert subscription
// protocol. A connection starts anonymous; REGISTER binds it to an identity.
type Handler struct {
	logger   *slog.Logger
	resolver Resolver
	presence Presence
	metrics  *metrics.Metrics
	events   EventLog
	upgrader websocket.Upgrader
	now      func() time.Time
}

type Option func(h *Handler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// WithEventLog enables lifecycle event emission.
func WithEventLog(events EventLog) Option {
	return func(h *Handler) {
		h.events = events
	}
}

func New(resolver Resolver, presence Presence, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:   logger,
		resolver: resolver,
		presence: presence,
		now:      time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from app origins; auth happens at
			// REGISTER time, not at upgrade time.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the WebSocket endpoint on the given router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.CaptureDevice)
	router.Get("/alerts", h.handleConnect)

	r.Mount("/ws", router)
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.WarnContext(ctx, "websocket upgrade failed", "error", err.Error())
		return
	}

	sess := newSession(uuid.NewString(), conn)
	device := middleware.GetDevice(ctx)
	h.logger.InfoContext(ctx, "websocket connected",
		"session_id", sess.id,
		"remote_addr", r.RemoteAddr,
		"platform", device.Platform,
		"mobile", device.Mobile,
	)

	go sess.writeLoop()
	_ = sess.Send(connectionEstablishedFrame())

	h.readLoop(ctx, sess)
}

// readLoop drives the session state machine until the client goes away. The
// deferred cleanup releases whatever identity the session was last bound to,
// so an abrupt disconnect can never leave a stale registration behind.
func (h *Handler) readLoop(ctx context.Context, sess *session) {
	var identity uuid.UUID

	defer func() {
		if identity != uuid.Nil {
			h.presence.Unregister(identity, sess.id)
			h.emit(ctx, eventlog.KindWSUnregistered, identity, sess.id)
		}
		sess.close()
		h.logger.InfoContext(ctx, "websocket disconnected", "session_id", sess.id)
	}()

	sess.conn.SetReadLimit(4096)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WarnContext(ctx, "websocket read failed",
					"session_id", sess.id,
					"error", err.Error(),
				)
			}
			return
		}

		msg, err := decodeInbound(payload)
		if err != nil {
			// Protocol errors are reported but never fatal.
			_ = sess.Send(errorFrame(err.Error()))
			continue
		}

		switch msg.Type {
		case typeRegister:
			identity = h.handleRegister(ctx, sess, identity, msg.UserID)
		case typeUnregister:
			identity = h.handleUnregister(ctx, sess, identity, msg.UserID)
		case typePing:
			_ = sess.Send(pongFrame(h.now().UnixMilli()))
		}
	}
}

// handleRegister binds the session to the resolved identity and returns the
// new binding. Re-registering under a different identity moves the session.
func (h *Handler) handleRegister(ctx context.Context, sess *session, current uuid.UUID, rawUserID string) uuid.UUID {
	resolved, err := h.resolver.Resolve(ctx, rawUserID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) || dErrors.HasCode(err, dErrors.CodeValidation) {
			_ = sess.Send(errorFrame("unknown user"))
		} else {
			h.logger.ErrorContext(ctx, "failed to resolve identity",
				"session_id", sess.id,
				"error", err.Error(),
			)
			_ = sess.Send(errorFrame("registration failed"))
		}
		return current
	}

	if current != uuid.Nil && current != resolved {
		h.presence.Unregister(current, sess.id)
		h.emit(ctx, eventlog.KindWSUnregistered, current, sess.id)
	}
	h.presence.Register(resolved, sess.id, sess)
	h.emit(ctx, eventlog.KindWSRegistered, resolved, sess.id)
	// The ack echoes the identifier the client sent, not the canonical id.
	_ = sess.Send(registeredFrame(rawUserID))
	return resolved
}

// handleUnregister releases the session's binding. The identity the session
// is actually bound to wins over whatever userId the frame carries.
func (h *Handler) handleUnregister(ctx context.Context, sess *session, current uuid.UUID, rawUserID string) uuid.UUID {
	if current == uuid.Nil {
		_ = sess.Send(errorFrame("not registered"))
		return current
	}
	h.presence.Unregister(current, sess.id)
	h.emit(ctx, eventlog.KindWSUnregistered, current, sess.id)
	_ = sess.Send(unregisteredFrame(rawUserID))
	return uuid.Nil
}

func (h *Handler) emit(ctx context.Context, kind string, identity uuid.UUID, sessionID string) {
	if h.events == nil {
		return
	}
	_ = h.events.Emit(ctx, eventlog.Event{
		Kind:     kind,
		UserID:   identity,
		Metadata: map[string]string{"session_id": sessionID},
	})
}
