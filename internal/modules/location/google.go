package location

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"
)

// GoogleGeocoder uses the Google Geocoding API for both directions.
type GoogleGeocoder struct {
	client  *maps.Client
	country string
	limit   int
}

func NewGoogleGeocoder(apiKey, country string, limit int, opts ...maps.ClientOption) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	if limit <= 0 {
		limit = 5
	}
	return &GoogleGeocoder{client: client, country: country, limit: limit}, nil
}

func (g *GoogleGeocoder) Search(ctx context.Context, query string) ([]Place, error) {
	r := &maps.GeocodingRequest{Address: query, Region: g.country}
	if g.country != "" {
		r.Components = map[maps.Component]string{maps.ComponentCountry: g.country}
	}
	results, err := g.client.Geocode(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("geocode api error: %w", err)
	}

	places := make([]Place, 0, len(results))
	for _, res := range results {
		places = append(places, Place{
			Name:     shortName(res.FormattedAddress),
			FullName: res.FormattedAddress,
			Lat:      res.Geometry.Location.Lat,
			Lng:      res.Geometry.Location.Lng,
		})
		if len(places) >= g.limit {
			break
		}
	}
	return places, nil
}

func (g *GoogleGeocoder) Reverse(ctx context.Context, lat, lng float64) (Place, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lng},
	})
	if err != nil {
		return Place{}, fmt.Errorf("reverse geocode api error: %w", err)
	}
	if len(results) == 0 || results[0].FormattedAddress == "" {
		return Place{}, errNoMatch
	}
	addr := results[0].FormattedAddress
	return Place{Name: shortName(addr), FullName: addr, Lat: lat, Lng: lng}, nil
}
