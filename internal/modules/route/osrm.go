// README: OSRM HTTP route provider.
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"smartride/internal/types"
)

// OSRMProvider queries the /route/v1/driving endpoint of an OSRM server.
type OSRMProvider struct {
	baseURL string
	client  *http.Client
}

func NewOSRMProvider(baseURL string, client *http.Client) *OSRMProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &OSRMProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"` // [lng, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

func (p *OSRMProvider) Route(ctx context.Context, start, end types.GeoPoint) (Result, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		p.baseURL, start.Lng, start.Lat, end.Lng, end.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("osrm status %d", resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("osrm decode: %w", err)
	}
	if body.Code != "" && body.Code != "Ok" {
		return Result{}, fmt.Errorf("osrm code %s", body.Code)
	}
	if len(body.Routes) == 0 {
		return Result{}, ErrEmptyRoute
	}

	r := body.Routes[0]
	path := make([]types.GeoPoint, 0, len(r.Geometry.Coordinates))
	for _, c := range r.Geometry.Coordinates {
		if len(c) < 2 {
			continue
		}
		path = append(path, types.GeoPoint{Lat: c[1], Lng: c[0]})
	}
	if len(path) < 2 {
		return Result{}, ErrEmptyRoute
	}

	return Result{
		Path:        path,
		DistanceKm:  r.Distance / 1000,
		DurationMin: r.Duration / 60,
		Source:      SourceRoad,
	}, nil
}
