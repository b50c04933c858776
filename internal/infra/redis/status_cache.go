package redis

import (
	"context"
	"time"

	"course-tokens/internal/domain/model"
	"course-tokens/internal/usecase"

	"github.com/rs/zerolog"
)

// Ensure implementation satisfies the interface.
var _ usecase.StatusCache = (*StatusCache)(nil)

// StatusCache holds projected token statuses for a short TTL. The projection
// is derived read-only, so a stale entry only delays a display update; cache
// errors are swallowed and the caller recomputes.
type StatusCache struct {
	client RedisClient
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewStatusCache(client RedisClient, ttl time.Duration, logger *zerolog.Logger) *StatusCache {
	return &StatusCache{client: client, ttl: ttl, log: logger}
}

func statusKey(tokenID string) string { return "token_status:" + tokenID }

func (c *StatusCache) Get(ctx context.Context, tokenID string) (model.TokenStatus, bool) {
	val, err := c.client.Get(ctx, statusKey(tokenID))
	if err != nil {
		return "", false
	}
	return model.TokenStatus(val), true
}

func (c *StatusCache) Set(ctx context.Context, tokenID string, status model.TokenStatus) {
	if err := c.client.Set(ctx, statusKey(tokenID), string(status), c.ttl); err != nil {
		c.log.Debug().Err(err).Str("token_id", tokenID).Msg("status cache set failed")
	}
}

// Invalidate drops a cached status after a state change (void, unvoid,
// unenrol) so the next read reflects it immediately.
func (c *StatusCache) Invalidate(ctx context.Context, tokenID string) {
	if err := c.client.Del(ctx, statusKey(tokenID)); err != nil {
		c.log.Debug().Err(err).Str("token_id", tokenID).Msg("status cache invalidate failed")
	}
}
