package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikepea/linkcash/pkg/linkcash/config"
	"github.com/redis/go-redis/v9"
)

const codeCachePrefix = "code:"

// RedisCodeCache maps short codes to link ids. Codes never change after
// creation, so an entry can only become stale by the link being deleted.
type RedisCodeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects and pings the configured redis server.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func NewRedisCodeCache(client *redis.Client, ttl time.Duration) *RedisCodeCache {
	return &RedisCodeCache{client: client, ttl: ttl}
}

func codeKey(code string) string {
	return codeCachePrefix + code
}

// Get returns the cached link id for code. A miss is reported as ok=false
// with a nil error.
func (c *RedisCodeCache) Get(ctx context.Context, code string) (string, bool, error) {
	id, err := c.client.Get(ctx, codeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

func (c *RedisCodeCache) Set(ctx context.Context, code, linkID string) error {
	return c.client.Set(ctx, codeKey(code), linkID, c.ttl).Err()
}

func (c *RedisCodeCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, codeKey(code)).Err()
}
