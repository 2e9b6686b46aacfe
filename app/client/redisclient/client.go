package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/Kaggle-runa/book-agent/app/config"

	"github.com/redis/go-redis/v9"
)

// Conn opens a redis connection and verifies it with a ping.
func Conn(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Pass,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
