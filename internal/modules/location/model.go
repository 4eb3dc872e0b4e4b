// README: Place and address models returned by forward and reverse geocoding.
package location

import (
	"context"
	"strings"

	"smartride/internal/types"
)

const (
	// PinnedName labels a point whose reverse lookup has not resolved.
	PinnedName = "Pinned Location"
	// minQueryLength is the shortest trimmed query sent to a geocoder.
	minQueryLength = 3
)

type Place struct {
	Name     string  `json:"name"`
	FullName string  `json:"full_name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

func (p Place) Point() types.GeoPoint {
	return types.GeoPoint{Lat: p.Lat, Lng: p.Lng, Name: p.Name}
}

type Address struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Resolved bool   `json:"resolved"`
}

// Geocoder is implemented by the Nominatim and Google clients.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]Place, error)
	Reverse(ctx context.Context, lat, lng float64) (Place, error)
}

// shortName returns the first comma-delimited segment of a display name.
func shortName(display string) string {
	name, _, _ := strings.Cut(display, ",")
	return strings.TrimSpace(name)
}
