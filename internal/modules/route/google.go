package route

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"smartride/internal/types"
)

// GoogleProvider handles interactions with the Google Directions API.
type GoogleProvider struct {
	client *maps.Client
}

// NewGoogleProvider creates a GoogleProvider with the given API key. Extra
// client options (base URL, HTTP client) are passed through.
func NewGoogleProvider(apiKey string, opts ...maps.ClientOption) (*GoogleProvider, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

// Route returns the first driving route, with the overview polyline as path.
func (p *GoogleProvider) Route(ctx context.Context, start, end types.GeoPoint) (Result, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(start),
		Destination: latLng(end),
		Mode:        maps.TravelModeDriving,
		Region:      "in",
	}

	routes, _, err := p.client.Directions(ctx, r)
	if err != nil {
		return Result{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Result{}, ErrEmptyRoute
	}

	points, err := routes[0].OverviewPolyline.Decode()
	if err != nil {
		return Result{}, fmt.Errorf("decode polyline: %w", err)
	}
	if len(points) < 2 {
		return Result{}, ErrEmptyRoute
	}

	var meters int
	var seconds float64
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
		seconds += leg.Duration.Seconds()
	}

	path := make([]types.GeoPoint, len(points))
	for i, ll := range points {
		path[i] = types.GeoPoint{Lat: ll.Lat, Lng: ll.Lng}
	}
	return Result{
		Path:        path,
		DistanceKm:  float64(meters) / 1000,
		DurationMin: seconds / 60,
		Source:      SourceRoad,
	}, nil
}

func latLng(p types.GeoPoint) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
