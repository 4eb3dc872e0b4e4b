// README: Reverse-lookup cache backed by Redis.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	reverseKeyPrefix = "geo:reverse:%.5f,%.5f"
	reverseTTL       = 24 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) GetAddress(ctx context.Context, lat, lng float64) (Address, bool, error) {
	val, err := s.redis.Get(ctx, reverseKey(lat, lng)).Bytes()
	if err == redis.Nil {
		return Address{}, false, nil
	}
	if err != nil {
		return Address{}, false, err
	}
	var a Address
	if err := json.Unmarshal(val, &a); err != nil {
		return Address{}, false, err
	}
	return a, true, nil
}

// PutAddress stores resolved addresses only.
func (s *Store) PutAddress(ctx context.Context, lat, lng float64, a Address) error {
	if !a.Resolved {
		return nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, reverseKey(lat, lng), b, reverseTTL).Err()
}

func reverseKey(lat, lng float64) string {
	return fmt.Sprintf(reverseKeyPrefix, lat, lng)
}
