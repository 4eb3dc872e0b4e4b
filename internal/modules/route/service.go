// README: Route service wraps the road provider with a timeout, cache, and great-circle fallback.
package route

import (
	"context"
	"time"

	"go.uber.org/zap"

	"smartride/internal/types"
)

// Cache is satisfied by *Store.
type Cache interface {
	Get(ctx context.Context, start, end types.GeoPoint) (Result, bool, error)
	Put(ctx context.Context, start, end types.GeoPoint, r Result) error
}

// Metrics receives provider latency and the source of every served route.
type Metrics interface {
	ObserveProvider(provider string, d time.Duration, err error)
	RouteServed(source string)
}

type Service struct {
	provider Provider
	cache    Cache
	metrics  Metrics
	timeout  time.Duration
	logger   *zap.Logger
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(provider Provider, timeout time.Duration, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{provider: provider, timeout: timeout, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch never fails for valid coordinates: any provider failure, timeout, or
// degenerate path yields the great-circle fallback.
func (s *Service) Fetch(ctx context.Context, start, end types.GeoPoint) (Result, error) {
	if !start.Valid() || !end.Valid() {
		return Result{}, ErrInvalidPoint
	}

	if s.cache != nil {
		r, ok, err := s.cache.Get(ctx, start, end)
		if err != nil {
			s.logger.Warn("route cache read failed", zap.Error(err))
		} else if ok {
			s.served(r)
			return r, nil
		}
	}

	r, err := s.road(ctx, start, end)
	if err != nil {
		s.logger.Warn("road route unavailable, using fallback", zap.Error(err))
		r = Fallback(start, end)
		s.served(r)
		return r, nil
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, start, end, r); err != nil {
			s.logger.Warn("route cache write failed", zap.Error(err))
		}
	}
	s.served(r)
	return r, nil
}

func (s *Service) road(ctx context.Context, start, end types.GeoPoint) (Result, error) {
	if s.provider == nil {
		return Result{}, ErrEmptyRoute
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	began := time.Now()
	r, err := s.provider.Route(cctx, start, end)
	if err == nil && len(r.Path) < 2 {
		err = ErrEmptyRoute
	}
	if s.metrics != nil {
		s.metrics.ObserveProvider("route", time.Since(began), err)
	}
	if err != nil {
		return Result{}, err
	}
	r.Source = SourceRoad
	return r, nil
}

func (s *Service) served(r Result) {
	if s.metrics != nil {
		s.metrics.RouteServed(string(r.Source))
	}
}
