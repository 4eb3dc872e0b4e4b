// README: Great-circle route used whenever the road provider is unavailable.
package route

import (
	"smartride/internal/geo"
	"smartride/internal/types"
)

// Fallback is deterministic: straight path, haversine distance, fixed pace.
func Fallback(start, end types.GeoPoint) Result {
	d := geo.Distance(start, end)
	return Result{
		Path:        []types.GeoPoint{start, end},
		DistanceKm:  d,
		DurationMin: d * fallbackMinutesPerKm,
		Source:      SourceFallback,
	}
}
