// Package statscache keeps the dashboard stats snapshot in Redis so that
// every open dashboard does not recount the token and audit tables.
package statscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

const DefaultKey = "portaria:stats:tokens"

type Cache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Cache{client: client, key: DefaultKey, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context) (types.TokenStats, bool, error) {
	b, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.TokenStats{}, false, nil
	}
	if err != nil {
		return types.TokenStats{}, false, err
	}

	var s types.TokenStats
	if err := json.Unmarshal(b, &s); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		return types.TokenStats{}, false, nil
	}
	return s, true, nil
}

func (c *Cache) Set(ctx context.Context, s types.TokenStats) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, b, c.ttl).Err()
}

// Invalidate drops the snapshot so the next read recomputes it.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
