// Package geo holds the distance and coordinate helpers used by challenge generation.
package geo

import (
	"fmt"
	"math"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

// EarthRadiusMeters is the mean Earth radius used by every calculation in this package.
const EarthRadiusMeters = 6371e3

// BucketSizeDegrees is the edge of a cache bucket, roughly 1.1 km at the equator.
const BucketSizeDegrees = 0.01

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance between a and b in meters (Haversine).
func Distance(a, b models.Location) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// SyntheticOffset displaces origin by distanceMeters along bearing (radians, clockwise from
// north) using an equirectangular approximation. Only accurate for offsets of a few kilometers.
func SyntheticOffset(origin models.Location, bearing, distanceMeters float64) models.Location {
	dLat := distanceMeters * math.Cos(bearing) / EarthRadiusMeters
	dLon := distanceMeters * math.Sin(bearing) / (EarthRadiusMeters * math.Cos(toRadians(origin.Latitude)))
	return models.Location{
		Latitude:  origin.Latitude + toDegrees(dLat),
		Longitude: origin.Longitude + toDegrees(dLon),
	}
}

// MinDistance returns the distance from p to the closest position in set, or +Inf when set is
// empty.
func MinDistance(p models.Location, set []models.Location) float64 {
	best := math.Inf(1)
	for _, q := range set {
		if d := Distance(p, q); d < best {
			best = d
		}
	}
	return best
}

// BucketKey truncates loc onto the 0.01° grid and returns the cache key of that cell.
func BucketKey(loc models.Location) string {
	lat := int64(math.Floor(loc.Latitude / BucketSizeDegrees))
	lon := int64(math.Floor(loc.Longitude / BucketSizeDegrees))
	return fmt.Sprintf("challenge_pool:%d:%d", lat, lon)
}
