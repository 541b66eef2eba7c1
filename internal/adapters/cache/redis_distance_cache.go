package cache

import (
	"context"
	"delivery-estimate-service/internal/domain"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "distance:"

// RedisDistanceCache stores JSON-encoded distances with a native TTL.
type RedisDistanceCache struct {
	client redis.Cmdable
}

func NewRedisDistanceCache(client redis.Cmdable) *RedisDistanceCache {
	return &RedisDistanceCache{client: client}
}

type redisDistance struct {
	Miles         float64 `json:"distance_miles"`
	TravelMinutes int     `json:"travel_time_minutes"`
	Confidence    float64 `json:"confidence"`
	Source        string  `json:"source"`
}

func (c *RedisDistanceCache) Get(ctx context.Context, key string) (domain.Distance, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Distance{}, false, nil
	}
	if err != nil {
		return domain.Distance{}, false, fmt.Errorf("redis distance cache get key=%q: %w", key, err)
	}

	var v redisDistance
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.Distance{}, false, fmt.Errorf("redis distance cache decode key=%q: %w", key, err)
	}

	return domain.Distance{
		Miles:         v.Miles,
		TravelMinutes: v.TravelMinutes,
		Confidence:    v.Confidence,
		Source:        domain.DistanceSource(v.Source),
	}, true, nil
}

func (c *RedisDistanceCache) Set(ctx context.Context, key string, d domain.Distance, ttl time.Duration) error {
	raw, err := json.Marshal(redisDistance{
		Miles:         d.Miles,
		TravelMinutes: d.TravelMinutes,
		Confidence:    d.Confidence,
		Source:        string(d.Source),
	})
	if err != nil {
		return fmt.Errorf("redis distance cache encode: %w", err)
	}

	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis distance cache set key=%q: %w", key, err)
	}
	return nil
}
