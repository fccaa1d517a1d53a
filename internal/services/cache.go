package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/formlens/formlens-backend/internal/logger"
	"github.com/formlens/formlens-backend/internal/types"
)

// ComparisonCache is the read-side cache for persisted comparison results.
// Comparisons are immutable once written, so entries only ever need
// invalidation on delete. Every operation is best-effort: a cache failure
// degrades to a database read, never to a request failure.
type ComparisonCache interface {
	GetResult(ctx context.Context, comparisonID uuid.UUID) (*types.ComparisonResult, bool)
	SetResult(ctx context.Context, comparisonID uuid.UUID, result *types.ComparisonResult)
	Invalidate(ctx context.Context, comparisonID uuid.UUID)
}

type redisComparisonCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisComparisonCache(client *redis.Client, ttl time.Duration, baseLog *logger.Logger) ComparisonCache {
	cacheLog := baseLog.With("service", "ComparisonCache")
	return &redisComparisonCache{client: client, ttl: ttl, log: cacheLog}
}

func cacheKey(comparisonID uuid.UUID) string {
	return "comparison:result:" + comparisonID.String()
}

func (c *redisComparisonCache) GetResult(ctx context.Context, comparisonID uuid.UUID) (*types.ComparisonResult, bool) {
	raw, err := c.client.Get(ctx, cacheKey(comparisonID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("cache get failed", "comparison_id", comparisonID, "error", err)
		}
		return nil, false
	}
	var result types.ComparisonResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.log.Warn("cache entry undecodable, dropping", "comparison_id", comparisonID, "error", err)
		c.Invalidate(ctx, comparisonID)
		return nil, false
	}
	return &result, true
}

func (c *redisComparisonCache) SetResult(ctx context.Context, comparisonID uuid.UUID, result *types.ComparisonResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.log.Warn("cache encode failed", "comparison_id", comparisonID, "error", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(comparisonID), raw, c.ttl).Err(); err != nil {
		c.log.Debug("cache set failed", "comparison_id", comparisonID, "error", err)
	}
}

func (c *redisComparisonCache) Invalidate(ctx context.Context, comparisonID uuid.UUID) {
	if err := c.client.Del(ctx, cacheKey(comparisonID)).Err(); err != nil {
		c.log.Debug("cache invalidate failed", "comparison_id", comparisonID, "error", err)
	}
}
