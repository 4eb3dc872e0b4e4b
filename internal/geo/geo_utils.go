// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"

	"smartride/internal/types"
)

const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// Distance is HaversineKm for two GeoPoints.
func Distance(a, b types.GeoPoint) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Offset shifts p by the given deltas in degrees. The name is kept.
func Offset(p types.GeoPoint, dLat, dLng float64) types.GeoPoint {
	return types.GeoPoint{Lat: p.Lat + dLat, Lng: p.Lng + dLng, Name: p.Name}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
