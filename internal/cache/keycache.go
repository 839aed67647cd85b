// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/config"
)

// =============================================================================
// 💾 凭据读缓存
// =============================================================================

// KeyCache 基于 Redis 的 API Key 读缓存。后端不可用时降级为
// 全部未命中，读路径自动回退数据库，绝不放大故障。
type KeyCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewKeyCache 创建凭据缓存并探测连接。
func NewKeyCache(cfg config.RedisConfig, logger *zap.Logger) (*KeyCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	logger.Info("credential cache initialized",
		zap.String("addr", cfg.Addr),
		zap.Duration("ttl", ttl),
	)

	return &KeyCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "key_cache")),
	}, nil
}

func cacheKey(providerID string) string {
	return "credentials:" + providerID
}

// GetAPIKey 读取缓存的 key；未命中或后端出错返回 false。
func (c *KeyCache) GetAPIKey(ctx context.Context, providerID string) (string, bool) {
	value, err := c.redis.Get(ctx, cacheKey(providerID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", zap.String("provider", providerID), zap.Error(err))
		}
		return "", false
	}
	return value, true
}

// SetAPIKey 写入缓存，失败只记日志。
func (c *KeyCache) SetAPIKey(ctx context.Context, providerID, apiKey string) {
	if err := c.redis.Set(ctx, cacheKey(providerID), apiKey, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("provider", providerID), zap.Error(err))
	}
}

// Invalidate 在凭据变更后同步失效条目。
func (c *KeyCache) Invalidate(ctx context.Context, providerID string) {
	if err := c.redis.Del(ctx, cacheKey(providerID)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("provider", providerID), zap.Error(err))
	}
}

// Close 关闭 Redis 客户端。
func (c *KeyCache) Close() error {
	return c.redis.Close()
}
