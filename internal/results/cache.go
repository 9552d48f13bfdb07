package results

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pollpulse/backend/internal/models"
)

// Cache is a read-through Redis cache of results snapshots, keyed by
// poll ID and invalidated on every successful vote cast. It is never
// the source of truth; the vote rows stay authoritative, and any cache
// failure degrades to recomputing from the database.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache creates a results cache with the given snapshot TTL.
func NewCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(pollID uuid.UUID) string {
	return "results:" + pollID.String()
}

// Get returns the cached snapshot for a poll, if present.
func (c *Cache) Get(ctx context.Context, pollID uuid.UUID) (*models.PollResults, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(pollID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("results cache get", zap.Error(err))
		}
		return nil, false
	}
	var res models.PollResults
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Warn("results cache corrupt entry", zap.String("poll_id", pollID.String()), zap.Error(err))
		c.Invalidate(ctx, pollID)
		return nil, false
	}
	return &res, true
}

// Set stores a snapshot for a poll. A Set racing a concurrent cast's
// Invalidate can land afterwards and keep a pre-vote snapshot cached;
// the TTL bounds how long that snapshot can be served.
func (c *Cache) Set(ctx context.Context, pollID uuid.UUID, res *models.PollResults) {
	raw, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("results cache marshal", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(pollID), raw, c.ttl).Err(); err != nil {
		c.logger.Debug("results cache set", zap.Error(err))
	}
}

// Invalidate drops the cached snapshot for a poll. Called by the vote
// ledger after each successful cast.
func (c *Cache) Invalidate(ctx context.Context, pollID uuid.UUID) {
	if err := c.rdb.Del(ctx, cacheKey(pollID)).Err(); err != nil {
		c.logger.Debug("results cache invalidate", zap.Error(err))
	}
}
