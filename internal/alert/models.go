package alert

import (
	"time"

	"github.com/google/uuid"
)

// Alert is a citizen incident report. Only the fields dispatch needs are
// modeled here; media attachments and moderation live elsewhere.
type Alert struct {
	ID          uuid.UUID
	CreatedBy   uuid.UUID
	Category    string
	Title       string
	Description string
	Latitude    float64
	Longitude   float64
	// Anonymous hides the reporter's name from recipients. It never hides
	// the reporter from the system itself.
	Anonymous bool
	CreatedAt time.Time
}
