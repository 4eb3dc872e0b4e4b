// README: Location service: forward search and reverse lookup with graceful degradation.
package location

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"smartride/internal/types"
)

type Cache interface {
	GetAddress(ctx context.Context, lat, lng float64) (Address, bool, error)
	PutAddress(ctx context.Context, lat, lng float64, a Address) error
}

type Metrics interface {
	ObserveProvider(provider string, d time.Duration, err error)
}

type Service struct {
	geocoder Geocoder
	cache    Cache
	metrics  Metrics
	logger   *zap.Logger
}

func NewService(geocoder Geocoder, cache Cache, metrics Metrics, logger *zap.Logger) *Service {
	return &Service{geocoder: geocoder, cache: cache, metrics: metrics, logger: logger}
}

// Search returns up to the geocoder's limit of matches. Short queries and
// provider failures both yield an empty slice.
func (s *Service) Search(ctx context.Context, text string) []Place {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < minQueryLength {
		return []Place{}
	}

	began := time.Now()
	places, err := s.geocoder.Search(ctx, text)
	s.observe("geocode_search", began, err)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("location search failed", zap.String("query", text), zap.Error(err))
		}
		return []Place{}
	}
	if places == nil {
		places = []Place{}
	}
	return places
}

// ReverseLookup never fails. Unresolved points get PinnedName and a coordinate
// label.
func (s *Service) ReverseLookup(ctx context.Context, lat, lng float64) Address {
	if s.cache != nil {
		if a, ok, err := s.cache.GetAddress(ctx, lat, lng); err == nil && ok {
			return a
		} else if err != nil {
			s.logger.Warn("reverse cache read failed", zap.Error(err))
		}
	}

	began := time.Now()
	p, err := s.geocoder.Reverse(ctx, lat, lng)
	s.observe("geocode_reverse", began, err)
	if err != nil || p.Name == "" {
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("reverse lookup failed", zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(err))
		}
		return Address{
			Name:     PinnedName,
			FullName: types.GeoPoint{Lat: lat, Lng: lng}.Coords(),
		}
	}

	a := Address{Name: p.Name, FullName: p.FullName, Resolved: true}
	if s.cache != nil {
		if err := s.cache.PutAddress(ctx, lat, lng, a); err != nil {
			s.logger.Warn("reverse cache write failed", zap.Error(err))
		}
	}
	return a
}

func (s *Service) observe(kind string, began time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveProvider(kind, time.Since(began), err)
	}
}
