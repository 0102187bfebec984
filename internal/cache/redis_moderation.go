package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maritime-tutor/backend/internal/service"
)

// RedisModerationCache is the multi-instance counterpart to ModerationCache:
// the same fingerprint-keyed TTL store, backed by Redis so every replica of
// the service shares moderation decisions instead of each warming its own
// in-memory map.
type RedisModerationCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisModerationCache wraps an existing Redis client. The caller owns
// the client's lifecycle (Close).
func NewRedisModerationCache(client *redis.Client, ttl time.Duration) *RedisModerationCache {
	if ttl <= 0 {
		ttl = DefaultModerationCacheTTL
	}
	return &RedisModerationCache{client: client, ttl: ttl, prefix: "moderation:"}
}

// Get implements service.ModerationCacheStore. A Redis error or miss is
// treated as "not cached" so the moderation gate falls through to a live
// decision rather than failing the turn outright.
func (c *RedisModerationCache) Get(fingerprint string) (service.ModerationDecision, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	raw, err := c.client.Get(ctx, c.prefix+fingerprint).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("[CACHE] redis moderation get failed", "error", err)
		}
		return service.ModerationDecision{}, false
	}

	var decision service.ModerationDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		slog.Warn("[CACHE] redis moderation decode failed", "error", err)
		return service.ModerationDecision{}, false
	}
	return decision, true
}

// Set implements service.ModerationCacheStore.
func (c *RedisModerationCache) Set(fingerprint string, decision service.ModerationDecision) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	raw, err := json.Marshal(decision)
	if err != nil {
		slog.Warn("[CACHE] redis moderation encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+fingerprint, raw, c.ttl).Err(); err != nil {
		slog.Warn("[CACHE] redis moderation set failed", "error", err)
	}
}

// HealthCheck pings the backing Redis connection for the health endpoint.
func (c *RedisModerationCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
