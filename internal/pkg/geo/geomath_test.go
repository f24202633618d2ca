package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

func TestDistance(t *testing.T) {
	oneDegree := EarthRadiusMeters * math.Pi / 180

	tests := []struct {
		name     string
		a, b     models.Location
		expected float64
	}{
		{"same point", models.Location{Latitude: 50.0755, Longitude: 14.4378}, models.Location{Latitude: 50.0755, Longitude: 14.4378}, 0},
		{"one degree on the equator meridian", models.Location{Latitude: 0, Longitude: 0}, models.Location{Latitude: 1, Longitude: 0}, oneDegree},
		{"one degree of latitude in Prague", models.Location{Latitude: 50, Longitude: 14.4}, models.Location{Latitude: 51, Longitude: 14.4}, oneDegree},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, Distance(tc.a, tc.b), 0.5)
			assert.InDelta(t, Distance(tc.a, tc.b), Distance(tc.b, tc.a), 1e-9)
		})
	}
}

func TestSyntheticOffset(t *testing.T) {
	origin := models.Location{Latitude: 50.0755, Longitude: 14.4378}

	for _, bearing := range []float64{0, math.Pi / 4, math.Pi / 2, math.Pi, 3 * math.Pi / 2} {
		for _, meters := range []float64{100, 800, 1600} {
			p := SyntheticOffset(origin, bearing, meters)
			assert.InDelta(t, meters, Distance(origin, p), meters*0.01)
		}
	}

	north := SyntheticOffset(origin, 0, 500)
	assert.Greater(t, north.Latitude, origin.Latitude)
	assert.InDelta(t, origin.Longitude, north.Longitude, 1e-9)

	east := SyntheticOffset(origin, math.Pi/2, 500)
	assert.Greater(t, east.Longitude, origin.Longitude)
}

func TestMinDistance(t *testing.T) {
	p := models.Location{Latitude: 50, Longitude: 14}
	assert.True(t, math.IsInf(MinDistance(p, nil), 1))

	near := SyntheticOffset(p, 0, 150)
	far := SyntheticOffset(p, math.Pi, 900)
	assert.InDelta(t, 150, MinDistance(p, []models.Location{far, near}), 2)
}

func TestBucketKey(t *testing.T) {
	a := models.Location{Latitude: 50.0755, Longitude: 14.4378}
	b := models.Location{Latitude: 50.0799, Longitude: 14.4301}
	c := models.Location{Latitude: 50.0855, Longitude: 14.4378}

	assert.Equal(t, BucketKey(a), BucketKey(b))
	assert.NotEqual(t, BucketKey(a), BucketKey(c))
	assert.Equal(t, "challenge_pool:5007:1443", BucketKey(a))

	west := models.Location{Latitude: 38.7223, Longitude: -9.1393}
	assert.Equal(t, "challenge_pool:3872:-914", BucketKey(west))
}
