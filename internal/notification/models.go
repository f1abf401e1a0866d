package notification

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery medium a notification targets.
type Channel string

const (
	ChannelPush  Channel = "PUSH"
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelPush, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// Status is the delivery state machine. It only moves forward:
//
//	QUEUED -> SENT -> DELIVERED
//	QUEUED|SENT -> FAILED
//
// DELIVERED and FAILED are terminal. Read and soft-delete are timestamps
// orthogonal to Status; they can be set in any state.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// CanTransitionTo reports whether next is a legal forward move. Skipping SENT
// is allowed: a recipient can acknowledge delivery before the server marked
// the record sent.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusSent || next == StatusDelivered || next == StatusFailed
	case StatusSent:
		return next == StatusDelivered || next == StatusFailed
	default:
		return false
	}
}

// Notification is the durable per-recipient record of an alert. It exists
// whether or not the recipient was online when the alert fired.
type Notification struct {
	ID          uuid.UUID
	AlertID     uuid.UUID
	UserID      uuid.UUID
	Channel     Channel
	Status      Status
	CreatedAt   time.Time
	SentAt      *time.Time
	DeliveredAt *time.Time
	ReadAt      *time.Time
	DeletedAt   *time.Time
}

// IsRead reports whether the recipient has read the notification.
func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// IsDeleted reports whether the notification was soft-deleted.
func (n *Notification) IsDeleted() bool { return n.DeletedAt != nil }
