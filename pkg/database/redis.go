package database

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/luminadata/schemagraph/pkg/apperrors"
	"github.com/luminadata/schemagraph/pkg/config"
)

// NewRedisClient creates a Redis client for the result cache.
// Returns nil if Redis is not configured (host is empty); callers
// treat a nil client as cache disabled.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCacheDown, "failed to connect to Redis", err)
	}

	return client, nil
}
