package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/config"
)

func newTestCache(t *testing.T) (*KeyCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	cache, err := NewKeyCache(config.RedisConfig{
		Enabled: true,
		Addr:    server.Addr(),
		TTL:     time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, server
}

func TestKeyCache_SetGetInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.GetAPIKey(ctx, "cerebras")
	assert.False(t, ok)

	cache.SetAPIKey(ctx, "cerebras", "sk-cached")
	value, ok := cache.GetAPIKey(ctx, "cerebras")
	require.True(t, ok)
	assert.Equal(t, "sk-cached", value)

	cache.Invalidate(ctx, "cerebras")
	_, ok = cache.GetAPIKey(ctx, "cerebras")
	assert.False(t, ok)
}

func TestKeyCache_EntriesExpire(t *testing.T) {
	cache, server := newTestCache(t)
	ctx := context.Background()

	cache.SetAPIKey(ctx, "cohere", "sk-ttl")
	require.True(t, server.Exists("credentials:cohere"))

	server.FastForward(2 * time.Minute)
	_, ok := cache.GetAPIKey(ctx, "cohere")
	assert.False(t, ok)
}

func TestKeyCache_BackendDownDegradesToMiss(t *testing.T) {
	cache, server := newTestCache(t)
	ctx := context.Background()

	cache.SetAPIKey(ctx, "gemini", "sk-x")
	server.Close()

	// 后端宕机:读返回未命中,写与失效不恐慌
	_, ok := cache.GetAPIKey(ctx, "gemini")
	assert.False(t, ok)
	assert.NotPanics(t, func() {
		cache.SetAPIKey(ctx, "gemini", "sk-y")
		cache.Invalidate(ctx, "gemini")
	})
}

func TestNewKeyCache_ConnectFailure(t *testing.T) {
	_, err := NewKeyCache(config.RedisConfig{Addr: "127.0.0.1:1"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestKeyCache_DefaultTTL(t *testing.T) {
	server := miniredis.RunT(t)
	cache, err := NewKeyCache(config.RedisConfig{Addr: server.Addr()}, zap.NewNop())
	require.NoError(t, err)
	defer cache.Close()

	assert.Equal(t, 30*time.Second, cache.ttl)
}
