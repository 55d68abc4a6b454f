package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/semmidev/sqlkeep/internal/domain"
)

const redisKeyPrefix = "sqlkeep:"

// RedisCache shares the listing cache between processes that serve the
// same backup directory.
type RedisCache struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisCache{client: client}, nil
}

// Get treats every redis or decoding failure as a miss; the caller then
// rescans the directory.
func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.BackupEntry, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}

	var entries []domain.BackupEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

func (c *RedisCache) Set(ctx context.Context, key string, entries []domain.BackupEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return c.Invalidate(ctx, key)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode listing: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store listing: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to invalidate listing: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
