// Package geo implements the circular-zone containment test used to decide
// which users are notified about an alert.
package geo

import (
	"log/slog"
	"math"

	"github.com/google/uuid"
)

const (
	earthRadiusM = 6_371_000

	// Zone radius bounds in meters.
	MinRadiusM = 100
	MaxRadiusM = 50_000
)

// Zone is a user-configured circular region. One zone per user.
type Zone struct {
	OwnerID   uuid.UUID
	CenterLat float64
	CenterLon float64
	RadiusM   float64
}

// Valid reports whether the zone geometry is usable for matching.
func (z Zone) Valid() bool {
	return validCoord(z.CenterLat, z.CenterLon) &&
		!math.IsNaN(z.RadiusM) &&
		z.RadiusM >= MinRadiusM && z.RadiusM <= MaxRadiusM
}

func validCoord(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Matcher evaluates zone containment. It is stateless; the logger only
// records skipped malformed zones.
type Matcher struct {
	logger *slog.Logger
}

type Option func(m *Matcher)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match returns the owners of all zones containing the point, excluding
// excludeOwner (the alert creator). Containment is boundary inclusive: a
// point at exactly RadiusM from the center matches. A malformed zone is
// skipped without aborting matching for the remaining candidates.
func (m *Matcher) Match(lat, lon float64, zones []Zone, excludeOwner uuid.UUID) []uuid.UUID {
	matched := make([]uuid.UUID, 0, len(zones))
	for _, z := range zones {
		if z.OwnerID == excludeOwner {
			continue
		}
		if !z.Valid() {
			if m.logger != nil {
				m.logger.Warn("skipping malformed zone",
					"owner_id", z.OwnerID,
					"lat", z.CenterLat,
					"lon", z.CenterLon,
					"radius_m", z.RadiusM,
				)
			}
			continue
		}
		if Distance(lat, lon, z.CenterLat, z.CenterLon) <= z.RadiusM {
			matched = append(matched, z.OwnerID)
		}
	}
	return matched
}

// Distance computes the great-circle distance in meters between two
// coordinates using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}
