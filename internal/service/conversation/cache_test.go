package conversation

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemchat/internal/config"
	"gemchat/internal/models"
	"gemchat/internal/redis"
)

func TestNilListCacheIsInert(t *testing.T) {
	c := newListCache(nil, nil)
	ctx := context.Background()
	_, ok := c.version(ctx, "u")
	assert.False(t, ok)
	c.put(ctx, "u", "0", []models.Conversation{{ID: "x"}})
	_, ok = c.get(ctx, "u", "0")
	assert.False(t, ok)
	c.invalidate(ctx, "u")
}

func newRedisTestService(t *testing.T) *Service {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed conversation tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	client, err := redis.NewClient(config.RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	base := newTestService(t)
	return NewService(base.db, client, nil)
}

func TestListCacheInvalidatedOnWrite(t *testing.T) {
	svc := newRedisTestService(t)
	ctx := context.Background()
	user, err := svc.RegisterUser(ctx, "cache-user", "pw")
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.DeleteUser(context.Background(), user.ID) })

	_, err = svc.CreateConversation(ctx, user.ID, "one")
	require.NoError(t, err)
	convs, err := svc.ListConversations(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	version, ok := svc.cache.version(ctx, user.ID)
	require.True(t, ok)
	cached, ok := svc.cache.get(ctx, user.ID, version)
	require.True(t, ok)
	assert.Equal(t, convs[0].ID, cached[0].ID)

	_, err = svc.CreateConversation(ctx, user.ID, "two")
	require.NoError(t, err)
	next, ok := svc.cache.version(ctx, user.ID)
	require.True(t, ok)
	assert.NotEqual(t, version, next, "create must bump the list version")
	_, ok = svc.cache.get(ctx, user.ID, next)
	assert.False(t, ok)

	convs, err = svc.ListConversations(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestListCacheIgnoresListReadBeforeWrite(t *testing.T) {
	svc := newRedisTestService(t)
	ctx := context.Background()
	user, err := svc.RegisterUser(ctx, "cache-race-user", "pw")
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.DeleteUser(context.Background(), user.ID) })

	first, err := svc.CreateConversation(ctx, user.ID, "first")
	require.NoError(t, err)

	// a reader took its version and its rows before the next write landed
	version, ok := svc.cache.version(ctx, user.ID)
	require.True(t, ok)
	stale := []models.Conversation{*first}

	second, err := svc.CreateConversation(ctx, user.ID, "second")
	require.NoError(t, err)
	svc.cache.put(ctx, user.ID, version, stale)

	convs, err := svc.ListConversations(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	ids := []string{convs[0].ID, convs[1].ID}
	assert.Contains(t, ids, second.ID)
}
