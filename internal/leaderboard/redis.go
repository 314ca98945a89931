package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "testination:leaderboard:page:"

// RedisCache keeps pages for a fixed TTL. Scores appear on the leaderboard
// once the cached page expires.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, page int) (*Page, error) {
	raw, err := c.rdb.Get(ctx, key(page)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Page
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode cached page %d: %w", page, err)
	}
	return &p, nil
}

func (c *RedisCache) Set(ctx context.Context, page int, p Page) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(page), raw, c.ttl).Err()
}

func key(page int) string {
	return fmt.Sprintf("%s%d", keyPrefix, page)
}
