// Package cache is the Redis-backed result cache for the conversational
// engine. A cache fault is never fatal: failed reads count as misses and
// failed writes are logged and dropped.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/luminadata/schemagraph/pkg/models"
)

// ResultCache stores completed chat responses keyed by client and
// normalized question. A nil Redis client disables caching entirely.
type ResultCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New builds a ResultCache. A non-positive ttl defaults to one hour.
func New(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.Named("cache"),
	}
}

// Key derives the cache key for one question. Questions are trimmed and
// lowercased so trivially restated questions hit the same entry.
func Key(clientID, question string) string {
	return fmt.Sprintf("nl2sql:%s:%s", clientID, strings.ToLower(strings.TrimSpace(question)))
}

// Enabled reports whether a Redis backend is wired in.
func (c *ResultCache) Enabled() bool {
	return c.rdb != nil
}

// Get returns the cached response for key, or (nil, false) on a miss.
// Redis faults and decode failures are logged and treated as misses.
func (c *ResultCache) Get(ctx context.Context, key string) (*models.ChatResponse, bool) {
	if c.rdb == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &resp, true
}

// Set stores a response under key with the configured TTL. Temporal
// values inside the dataframe serialize as RFC 3339 strings.
func (c *ResultCache) Set(ctx context.Context, key string, resp *models.ChatResponse) {
	if c.rdb == nil {
		return
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
