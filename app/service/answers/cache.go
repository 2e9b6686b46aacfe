package answers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "proposal:state:"

// ErrCacheMiss is returned by a Cache when no mirror exists for a thread.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a best-effort mirror of the durable proposal state. It is read
// only when the durable store is unavailable and is never authoritative.
type Cache interface {
	Load(ctx context.Context, threadID string) (int, map[string]string, error)
	Store(ctx context.Context, threadID string, count int, answers map[string]string) error
	Drop(ctx context.Context, threadID string) error
}

type cacheEntry struct {
	AskedCount int               `json:"asked_count"`
	Answers    map[string]string `json:"answers"`
}

// RedisCache mirrors proposal state into redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Load(ctx context.Context, threadID string) (int, map[string]string, error) {
	val, err := c.client.Get(ctx, cacheKeyPrefix+threadID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil, ErrCacheMiss
	}
	if err != nil {
		return 0, nil, fmt.Errorf("get cached state: %w", err)
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return 0, nil, fmt.Errorf("decode cached state: %w", err)
	}
	if entry.Answers == nil {
		entry.Answers = map[string]string{}
	}

	return entry.AskedCount, entry.Answers, nil
}

func (c *RedisCache) Store(ctx context.Context, threadID string, count int, answers map[string]string) error {
	data, err := json.Marshal(cacheEntry{AskedCount: count, Answers: answers})
	if err != nil {
		return fmt.Errorf("encode cached state: %w", err)
	}

	if err := c.client.Set(ctx, cacheKeyPrefix+threadID, data, 0).Err(); err != nil {
		return fmt.Errorf("set cached state: %w", err)
	}

	return nil
}

func (c *RedisCache) Drop(ctx context.Context, threadID string) error {
	if err := c.client.Del(ctx, cacheKeyPrefix+threadID).Err(); err != nil {
		return fmt.Errorf("del cached state: %w", err)
	}

	return nil
}

// NoopCache is used when no redis address is configured.
type NoopCache struct{}

func (NoopCache) Load(context.Context, string) (int, map[string]string, error) {
	return 0, nil, ErrCacheMiss
}

func (NoopCache) Store(context.Context, string, int, map[string]string) error { return nil }

func (NoopCache) Drop(context.Context, string) error { return nil }
