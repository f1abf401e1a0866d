package fanout

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Alert is the dispatch input. The alert domain maps its own model into this
// struct so fanout stays independent of how alerts are stored.
type Alert struct {
	ID          uuid.UUID
	Title       string
	Category    string
	Description string
	Latitude    float64
	Longitude   float64
	CreatedBy   uuid.UUID
	// CreatorName is empty for anonymous alerts.
	CreatorName string
	CreatedAt   time.Time
}

// alertFrame is the wire shape of the push: the event discriminator and the
// alert fields as siblings, no envelope.
type alertFrame struct {
	Event            string    `json:"event"`
	AlertID          uuid.UUID `json:"alertId"`
	AlertTitle       string    `json:"alertTitle"`
	AlertCategory    string    `json:"alertCategory"`
	AlertDescription string    `json:"alertDescription"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	CreatedByUser    *string   `json:"createdByUserName"`
	Timestamp        int64     `json:"timestamp"`
}

// Frame renders the NEW_ALERT push frame. It is built once per dispatch and
// shared across all recipients. Anonymous alerts carry a null creator name.
func (a Alert) Frame() ([]byte, error) {
	var creator *string
	if a.CreatorName != "" {
		name := a.CreatorName
		creator = &name
	}
	return json.Marshal(alertFrame{
		Event:            "NEW_ALERT",
		AlertID:          a.ID,
		AlertTitle:       a.Title,
		AlertCategory:    a.Category,
		AlertDescription: a.Description,
		Latitude:         a.Latitude,
		Longitude:        a.Longitude,
		CreatedByUser:    creator,
		Timestamp:        a.CreatedAt.UnixMilli(),
	})
}
