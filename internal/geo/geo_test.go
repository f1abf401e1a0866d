package geo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKnownPoints(t *testing.T) {
	// ~1.113 km per 0.01 degree of latitude.
	d := Distance(10.0, -75.0, 10.01, -75.0)
	assert.InDelta(t, 1113, d, 5)

	d = Distance(10.0, -75.0, 10.5, -75.0)
	assert.InDelta(t, 55_600, d, 300)

	assert.Zero(t, Distance(10.0, -75.0, 10.0, -75.0))
}

func TestMatchZoneContainment(t *testing.T) {
	owner := uuid.New()
	zones := []Zone{{OwnerID: owner, CenterLat: 10.0, CenterLon: -75.0, RadiusM: 5000}}
	m := NewMatcher()

	matched := m.Match(10.01, -75.0, zones, uuid.Nil)
	require.Len(t, matched, 1)
	assert.Equal(t, owner, matched[0])

	matched = m.Match(10.5, -75.0, zones, uuid.Nil)
	assert.Empty(t, matched)
}

func TestMatchBoundaryInclusive(t *testing.T) {
	owner := uuid.New()
	center := Zone{OwnerID: owner, CenterLat: 0, CenterLon: 0, RadiusM: MinRadiusM}
	m := NewMatcher()

	// Walk a point east until it sits exactly on the boundary, then one
	// meter beyond.
	onBoundaryLon := 0.0
	for lon := 0.0; ; lon += 1e-7 {
		if Distance(0, lon, 0, 0) >= center.RadiusM {
			onBoundaryLon = lon
			break
		}
	}
	distOn := Distance(0, onBoundaryLon, 0, 0)
	require.GreaterOrEqual(t, distOn, float64(MinRadiusM))
	require.Less(t, distOn, float64(MinRadiusM)+1)

	// Just inside matches; well beyond does not.
	assert.Len(t, m.Match(0, onBoundaryLon-1e-6, []Zone{center}, uuid.Nil), 1)
	assert.Empty(t, m.Match(0, onBoundaryLon+1e-4, []Zone{center}, uuid.Nil))
}

func TestMatchPointAtCenter(t *testing.T) {
	owner := uuid.New()
	zones := []Zone{{OwnerID: owner, CenterLat: 48.85, CenterLon: 2.35, RadiusM: 100}}
	matched := NewMatcher().Match(48.85, 2.35, zones, uuid.Nil)
	assert.Len(t, matched, 1)
}

func TestMatchExcludesCreator(t *testing.T) {
	creator := uuid.New()
	other := uuid.New()
	zones := []Zone{
		{OwnerID: creator, CenterLat: 10.0, CenterLon: -75.0, RadiusM: 5000},
		{OwnerID: other, CenterLat: 10.0, CenterLon: -75.0, RadiusM: 5000},
	}

	matched := NewMatcher().Match(10.0, -75.0, zones, creator)
	require.Len(t, matched, 1)
	assert.Equal(t, other, matched[0])
}

func TestMatchEmptyZones(t *testing.T) {
	assert.Empty(t, NewMatcher().Match(10, -75, nil, uuid.Nil))
}

func TestMatchSkipsMalformedZones(t *testing.T) {
	good := uuid.New()
	zones := []Zone{
		{OwnerID: uuid.New(), CenterLat: 120, CenterLon: 0, RadiusM: 5000},  // latitude out of range
		{OwnerID: uuid.New(), CenterLat: 10, CenterLon: -75, RadiusM: 50},   // radius below minimum
		{OwnerID: uuid.New(), CenterLat: 10, CenterLon: -75, RadiusM: 1e9},  // radius above maximum
		{OwnerID: good, CenterLat: 10, CenterLon: -75, RadiusM: 5000},
	}

	matched := NewMatcher().Match(10, -75, zones, uuid.Nil)
	require.Len(t, matched, 1)
	assert.Equal(t, good, matched[0])
}

func TestZoneValid(t *testing.T) {
	assert.True(t, Zone{CenterLat: 0, CenterLon: 0, RadiusM: 100}.Valid())
	assert.True(t, Zone{CenterLat: -90, CenterLon: 180, RadiusM: 50_000}.Valid())
	assert.False(t, Zone{CenterLat: 91, CenterLon: 0, RadiusM: 100}.Valid())
	assert.False(t, Zone{CenterLat: 0, CenterLon: -181, RadiusM: 100}.Valid())
	assert.False(t, Zone{CenterLat: 0, CenterLon: 0, RadiusM: 99}.Valid())
	assert.False(t, Zone{CenterLat: 0, CenterLon: 0, RadiusM: 50_001}.Valid())
}
