package models

import "fmt"

// Location is an immutable WGS-84 coordinate in degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid checks the coordinate ranges. Latitude must be between -90 and 90 and longitude between
// -180 and 180. The 0,0 point is treated as missing data.
func (l Location) Valid() bool {
	if l.Latitude == 0 && l.Longitude == 0 {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

func (l Location) String() string {
	return fmt.Sprintf("%.6f,%.6f", l.Latitude, l.Longitude)
}

// Locations extracts the positions of a challenge slice.
func Locations(challenges []Challenge) []Location {
	out := make([]Location, 0, len(challenges))
	for _, c := range challenges {
		out = append(out, c.Location)
	}
	return out
}
