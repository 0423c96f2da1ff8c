package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"gemchat/internal/models"
	"gemchat/internal/redis"
)

const listCacheTTL = 5 * time.Minute

// listCache keeps each user's conversation list in redis between writes.
// Lists are stored under a per-user version; a write bumps the version, so a
// list read from the database before the write can never be served after it.
// A nil client disables it.
type listCache struct {
	client *redis.Client
	log    *zap.Logger
}

func newListCache(client *redis.Client, logger *zap.Logger) *listCache {
	return &listCache{client: client, log: logger}
}

func versionKey(userID string) string {
	return "conv:list:ver:" + userID
}

func listKey(userID, version string) string {
	return "conv:list:" + userID + ":" + version
}

// version returns the user's current list version. ok is false when the
// cache is disabled or unreachable.
func (c *listCache) version(ctx context.Context, userID string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	v, err := c.client.Get(ctx, versionKey(userID))
	if errors.Is(err, redis.ErrCacheMiss) {
		return "0", true
	}
	if err != nil {
		c.log.Warn("conversation cache version failed", zap.Error(err))
		return "", false
	}
	return v, true
}

func (c *listCache) get(ctx context.Context, userID, version string) ([]models.Conversation, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, listKey(userID, version))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.log.Warn("conversation cache get failed", zap.Error(err))
		}
		return nil, false
	}
	var convs []models.Conversation
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		c.log.Warn("conversation cache decode failed", zap.Error(err))
		return nil, false
	}
	return convs, true
}

func (c *listCache) put(ctx context.Context, userID, version string, convs []models.Conversation) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(convs)
	if err != nil {
		c.log.Warn("conversation cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, listKey(userID, version), data, listCacheTTL); err != nil {
		c.log.Warn("conversation cache set failed", zap.Error(err))
	}
}

func (c *listCache) invalidate(ctx context.Context, userID string) {
	if c == nil || c.client == nil {
		return
	}
	if _, err := c.client.Incr(ctx, versionKey(userID)); err != nil {
		c.log.Warn("conversation cache invalidate failed", zap.Error(err))
	}
}
