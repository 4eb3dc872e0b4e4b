// README: Geographic point value object shared by providers and the trip state.
package types

import (
	"fmt"
	"math"
)

// coordEpsilon is the tolerance used when comparing two points for identity.
const coordEpsilon = 1e-9

type ID string

// GeoPoint is an immutable labelled coordinate.
type GeoPoint struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name"`
}

func NewGeoPoint(lat, lng float64, name string) GeoPoint {
	return GeoPoint{Lat: lat, Lng: lng, Name: name}
}

// Valid reports whether the coordinates are finite and within WGS84 ranges.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// SameLocation compares coordinates only; names are ignored.
func (p GeoPoint) SameLocation(o GeoPoint) bool {
	return math.Abs(p.Lat-o.Lat) < coordEpsilon && math.Abs(p.Lng-o.Lng) < coordEpsilon
}

func (p GeoPoint) WithName(name string) GeoPoint {
	p.Name = name
	return p
}

// Coords formats the point as "lat, lng" with four decimals.
func (p GeoPoint) Coords() string {
	return fmt.Sprintf("%.4f, %.4f", p.Lat, p.Lng)
}
