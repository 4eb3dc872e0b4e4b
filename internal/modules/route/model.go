// README: Route result model and provider contract.
package route

import (
	"context"
	"errors"

	"smartride/internal/types"
)

type Source string

const (
	SourceRoad     Source = "road"
	SourceFallback Source = "fallback"
)

// fallbackMinutesPerKm is the assumed pace of the great-circle estimate.
const fallbackMinutesPerKm = 2.0

var (
	ErrInvalidPoint = errors.New("invalid coordinates")
	ErrEmptyRoute   = errors.New("provider returned fewer than two points")
)

// Result is a road or fallback path between two points. Path always holds at
// least two points.
type Result struct {
	Path        []types.GeoPoint `json:"path"`
	DistanceKm  float64          `json:"distance_km"`
	DurationMin float64          `json:"duration_min"`
	Source      Source           `json:"source"`
}

func (r Result) IsFallback() bool {
	return r.Source == SourceFallback
}

// Clone returns a copy whose Path does not alias r.Path.
func (r Result) Clone() Result {
	out := r
	out.Path = append([]types.GeoPoint(nil), r.Path...)
	return out
}

// Provider computes a road route. Implementations return SourceRoad results.
type Provider interface {
	Route(ctx context.Context, start, end types.GeoPoint) (Result, error)
}
