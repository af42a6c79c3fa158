package cache

import (
	"context"
	"log/slog"
	"time"
)

// TwoTier fronts the distributed tier with the in-process LRU. The cache is
// never allowed to fail a request: distributed-tier errors degrade to a miss
// on reads and are dropped on writes.
type TwoTier struct {
	local       *LRU
	distributed Distributed
	logger      *slog.Logger
}

func NewTwoTier(local *LRU, distributed Distributed, logger *slog.Logger) *TwoTier {
	return &TwoTier{
		local:       local,
		distributed: distributed,
		logger:      logger,
	}
}

// Get checks the local tier first, then the distributed tier, promoting
// distributed hits into the local tier.
func (c *TwoTier) Get(ctx context.Context, key string, dst any) bool {
	if v, ok := c.local.Get(key); ok {
		if raw, ok := v.([]byte); ok {
			if err := Unmarshal(raw, dst); err == nil {
				return true
			}
		}
	}

	if c.distributed == nil {
		return false
	}
	raw, err := c.distributed.Get(ctx, key)
	if err != nil {
		c.logger.InfoContext(ctx, "distributed cache get failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	if raw == nil {
		return false
	}
	if err := Unmarshal(raw, dst); err != nil {
		return false
	}
	c.local.Set(key, raw)
	return true
}

// Set writes both tiers. The distributed write is fire-and-forget.
func (c *TwoTier) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := Marshal(value)
	if err != nil {
		c.logger.InfoContext(ctx, "cache marshal failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	c.local.Set(key, raw)

	if c.distributed == nil {
		return
	}
	if err := c.distributed.Set(ctx, key, raw, ttl); err != nil {
		c.logger.InfoContext(ctx, "distributed cache set failed", slog.String("key", key), slog.Any("error", err))
	}
}

// Invalidate clears a glob pattern from the distributed tier. Local entries
// expire on their own TTL.
func (c *TwoTier) Invalidate(ctx context.Context, pattern string) int {
	if c.distributed == nil {
		return 0
	}
	n, err := c.distributed.Invalidate(ctx, pattern)
	if err != nil {
		c.logger.InfoContext(ctx, "distributed cache invalidate failed", slog.String("pattern", pattern), slog.Any("error", err))
	}
	return n
}
