// Package geofence holds the pure geometry used to place a fleet on its route:
// circular stage geofences and the stage sequencing rules, including the
// turnaround at either end of a route.
package geofence

import (
	"math"

	"github.com/twpayne/go-geom"
)

// earthRadius is the mean Earth radius in meters.
const earthRadius = 6371008.8

// Point returns a geographic point. Coordinates follow the GeoJSON axis order (lng, lat).
func Point(lat, lng float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lng, lat})
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b *geom.Point) float64 {
	return haversine(a.Y(), a.X(), b.Y(), b.X())
}

// IsWithinRadius reports whether b lies within radius meters of a, boundary included.
func IsWithinRadius(a, b *geom.Point, radius float64) bool {
	if radius < 0 {
		return false
	}
	return Distance(a, b) <= radius
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push a a hair past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// toRadians converts an angle from degrees to radians.
func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
