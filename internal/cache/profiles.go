// Package cache provides the Redis-backed profile-summary cache used by the
// notification fan-out path. The cache is strictly an optimization: a nil
// *ProfileCache is valid and degrades to database lookups.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lumenfeed/backend/internal/logger"
	"github.com/lumenfeed/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	profileKeyPrefix = "profile:"
	profileTTL       = 5 * time.Minute
)

// ProfileCache caches ProfileSummary projections keyed by user id.
type ProfileCache struct {
	client *redis.Client
}

// NewProfileCache connects to Redis and returns a profile cache. Returns an
// error if the server is unreachable; callers may treat that as non-fatal and
// run without a cache.
func NewProfileCache(addr, password string) (*ProfileCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	logger.Log.Info("Redis profile cache connected", zap.String("address", addr))
	return &ProfileCache{client: client}, nil
}

// Get returns a cached profile summary, or false on miss or error.
func (c *ProfileCache) Get(ctx context.Context, userID string) (models.ProfileSummary, bool) {
	var summary models.ProfileSummary
	if c == nil {
		return summary, false
	}

	data, err := c.client.Get(ctx, profileKeyPrefix+userID).Bytes()
	if err != nil {
		return summary, false
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return summary, false
	}
	return summary, true
}

// Set stores a profile summary with a short TTL. Errors are logged and
// swallowed; the cache never fails a caller.
func (c *ProfileCache) Set(ctx context.Context, summary models.ProfileSummary) {
	if c == nil {
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, profileKeyPrefix+summary.ID, data, profileTTL).Err(); err != nil {
		logger.Log.Debug("Profile cache set failed", zap.String("user", summary.ID), zap.Error(err))
	}
}

// Invalidate drops a cached profile, for profile-update paths.
func (c *ProfileCache) Invalidate(ctx context.Context, userID string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, profileKeyPrefix+userID).Err(); err != nil {
		logger.Log.Debug("Profile cache invalidate failed", zap.String("user", userID), zap.Error(err))
	}
}

// Close releases the underlying Redis connection pool.
func (c *ProfileCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
