package cache

import (
	"context"
	"encoding/json"
	"time"

	"authorization-server/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache handles Redis operations
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache creates a new cache instance
func NewRedisCache(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test the connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisCache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetClient retrieves a client registration from cache
func (c *RedisCache) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	data, err := c.client.Get(ctx, clientKey(clientID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to get client from cache", zap.String("client_id", clientID), zap.Error(err))
		return nil, err
	}

	var client models.Client
	if err := json.Unmarshal([]byte(data), &client); err != nil {
		c.logger.Error("Failed to unmarshal client data", zap.Error(err))
		return nil, err
	}

	return &client, nil
}

// SetClient stores a client registration in cache
func (c *RedisCache) SetClient(ctx context.Context, client *models.Client, ttl time.Duration) error {
	data, err := json.Marshal(client)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, clientKey(client.ID), data, ttl).Err(); err != nil {
		c.logger.Error("Failed to set client in cache", zap.String("client_id", client.ID), zap.Error(err))
		return err
	}

	return nil
}

// DeleteClient evicts a client registration.
func (c *RedisCache) DeleteClient(ctx context.Context, clientID string) error {
	if err := c.client.Del(ctx, clientKey(clientID)).Err(); err != nil {
		c.logger.Error("Failed to delete client from cache", zap.String("client_id", clientID), zap.Error(err))
		return err
	}
	return nil
}

// CheckRateLimit checks if the key has exceeded rate limit
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rk := rateLimitKey(key)
	count, err := c.client.Incr(ctx, rk).Result()
	if err != nil {
		c.logger.Error("Failed to increment rate limit counter", zap.String("key", key), zap.Error(err))
		return false, err
	}

	// Set expiration on first request
	if count == 1 {
		if err := c.client.Expire(ctx, rk, window).Err(); err != nil {
			c.logger.Error("Failed to set rate limit expiration", zap.Error(err))
		}
	}

	return count > int64(limit), nil
}
