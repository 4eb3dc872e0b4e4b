// README: Nominatim HTTP geocoder.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var errNoMatch = errors.New("no geocoding match")

type NominatimConfig struct {
	BaseURL   string
	Country   string
	Limit     int
	UserAgent string
}

type NominatimGeocoder struct {
	cfg    NominatimConfig
	client *http.Client
}

func NewNominatimGeocoder(cfg NominatimConfig, client *http.Client) *NominatimGeocoder {
	if client == nil {
		client = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	return &NominatimGeocoder{cfg: cfg, client: client}
}

type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Error       string `json:"error"`
}

func (p nominatimPlace) toPlace() (Place, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("nominatim lat %q: %w", p.Lat, err)
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("nominatim lon %q: %w", p.Lon, err)
	}
	return Place{Name: shortName(p.DisplayName), FullName: p.DisplayName, Lat: lat, Lng: lng}, nil
}

func (g *NominatimGeocoder) Search(ctx context.Context, query string) ([]Place, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("limit", strconv.Itoa(g.cfg.Limit))
	if g.cfg.Country != "" {
		q.Set("countrycodes", g.cfg.Country)
	}

	var raw []nominatimPlace
	if err := g.get(ctx, "/search", q, &raw); err != nil {
		return nil, err
	}
	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		p, err := r.toPlace()
		if err != nil {
			continue
		}
		places = append(places, p)
	}
	return places, nil
}

func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lng float64) (Place, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("format", "json")

	var raw nominatimPlace
	if err := g.get(ctx, "/reverse", q, &raw); err != nil {
		return Place{}, err
	}
	if raw.Error != "" || raw.DisplayName == "" {
		return Place{}, errNoMatch
	}
	p := Place{Name: shortName(raw.DisplayName), FullName: raw.DisplayName, Lat: lat, Lng: lng}
	return p, nil
}

func (g *NominatimGeocoder) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	// Nominatim's usage policy rejects requests without an identifying agent.
	if g.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", g.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("nominatim %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nominatim %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nominatim %s decode: %w", path, err)
	}
	return nil
}
