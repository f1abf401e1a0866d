// Package eventlog captures the dispatch lifecycle as an append-only event
// stream. Events are best effort: losing one never affects alert delivery.
package eventlog

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds emitted by the platform.
const (
	KindAlertCreated              = "ALERT_CREATED"
	KindAlertDispatched           = "ALERT_DISPATCHED"
	KindNotificationCreated       = "NOTIFICATION_CREATED"
	KindNotificationStatusChanged = "NOTIFICATION_STATUS_CHANGED"
	KindWSRegistered              = "WS_REGISTERED"
	KindWSUnregistered            = "WS_UNREGISTERED"
)

// Event is one entry in the stream. Keep it transport-agnostic so sinks can
// fan out.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind"`
	AlertID   uuid.UUID         `json:"alertId"`
	UserID    uuid.UUID         `json:"userId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
