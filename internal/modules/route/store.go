// README: Route cache backed by Redis. Only road results are stored.
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"smartride/internal/types"
)

const (
	routeKeyPrefix = "route:%.5f,%.5f:%.5f,%.5f"
	routeTTL       = 6 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// Get returns the cached road route, and whether one was found.
func (s *Store) Get(ctx context.Context, start, end types.GeoPoint) (Result, bool, error) {
	val, err := s.redis.Get(ctx, routeKey(start, end)).Bytes()
	if err == redis.Nil {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	var r Result
	if err := json.Unmarshal(val, &r); err != nil {
		return Result{}, false, err
	}
	if len(r.Path) < 2 {
		return Result{}, false, nil
	}
	return r, true, nil
}

func (s *Store) Put(ctx context.Context, start, end types.GeoPoint, r Result) error {
	if r.Source != SourceRoad {
		return nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, routeKey(start, end), b, routeTTL).Err()
}

func routeKey(start, end types.GeoPoint) string {
	return fmt.Sprintf(routeKeyPrefix, start.Lat, start.Lng, end.Lat, end.Lng)
}
