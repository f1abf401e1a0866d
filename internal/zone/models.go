package zone

import (
	"time"

	"github.com/google/uuid"

	"vigil/internal/geo"
)

// Zone is a user's configured notification region. One zone per user:
// saving a new one replaces the old.
type Zone struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CenterLat float64
	CenterLon float64
	RadiusM   float64
	UpdatedAt time.Time
}

// Geometry converts the record into the matcher's value type.
func (z *Zone) Geometry() geo.Zone {
	return geo.Zone{
		OwnerID:   z.UserID,
		CenterLat: z.CenterLat,
		CenterLon: z.CenterLon,
		RadiusM:   z.RadiusM,
	}
}
