package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/labgrade-api/internal/observability"
)

func progressCacheKey(enrollmentID uint) string {
	return fmt.Sprintf("labgrade:progress:enrollment:%d", enrollmentID)
}

func courseReportCacheKey(courseID uint) string {
	return fmt.Sprintf("labgrade:report:course:%d", courseID)
}

// jsonCache wraps the optional redis client shared by the read models.
type jsonCache struct {
	client *redis.Client
	name   string
	ttl    time.Duration
	logger zerolog.Logger
}

func newJSONCache(client *redis.Client, name string, ttl time.Duration, logger zerolog.Logger) jsonCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return jsonCache{client: client, name: name, ttl: ttl, logger: logger}
}

func (c jsonCache) get(ctx context.Context, key string, target interface{}) bool {
	if c.client == nil {
		return false
	}

	cached, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("cache", c.name).Msg("failed to read cache")
		}
		observability.CacheLookups().WithLabelValues(c.name, "miss").Inc()
		return false
	}

	if err := json.Unmarshal([]byte(cached), target); err != nil {
		c.logger.Warn().Err(err).Str("cache", c.name).Msg("discarding undecodable cache entry")
		observability.CacheLookups().WithLabelValues(c.name, "miss").Inc()
		return false
	}

	observability.CacheLookups().WithLabelValues(c.name, "hit").Inc()
	return true
}

func (c jsonCache) set(ctx context.Context, key string, value interface{}) {
	if c.client == nil {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("cache", c.name).Msg("failed to store cache")
	}
}

func invalidateKeys(ctx context.Context, client *redis.Client, logger zerolog.Logger, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	if err := client.Del(ctx, keys...).Err(); err != nil {
		logger.Warn().Err(err).Strs("keys", keys).Msg("failed to invalidate cache")
	}
}
