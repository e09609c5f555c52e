package dedupcache

import (
	"context"
	"errors"
	"time"

	"incidentproxy/internal/domain"

	"github.com/redis/go-redis/v9"
)

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

const defaultRedisTTL = 24 * time.Hour

// NewRedisCache builds a dedup cache shared across proxy instances.
// Keys expire after ttl so the set tracks roughly one day of traffic,
// matching the date-bucketed artifact layout.
func NewRedisCache(addr, password string, db int, ttl time.Duration) (domain.DedupCache, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisCache{client: client, ttl: ttl}, nil
}

func (r *redisCache) Remember(ctx context.Context, key string) (bool, error) {
	stored, err := r.client.SetNX(ctx, "dedup:"+key, 1, r.ttl).Result()
	if err != nil {
		return false, err
	}
	return !stored, nil
}
