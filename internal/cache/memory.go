package cache

import (
	"context"
	"sync"
	"time"

	"authorization-server/internal/models"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the in-process Cache used when no Redis URL is configured.
type MemoryCache struct {
	store *gocache.Cache
	mu    sync.Mutex // serializes rate-limit window creation
}

// NewMemoryCache creates a cache whose expired entries are purged every
// cleanupInterval.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		store: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (c *MemoryCache) GetClient(_ context.Context, clientID string) (*models.Client, error) {
	v, ok := c.store.Get(clientKey(clientID))
	if !ok {
		return nil, nil
	}
	client := v.(models.Client)
	return &client, nil
}

func (c *MemoryCache) SetClient(_ context.Context, client *models.Client, ttl time.Duration) error {
	c.store.Set(clientKey(client.ID), *client, ttl)
	return nil
}

func (c *MemoryCache) DeleteClient(_ context.Context, clientID string) error {
	c.store.Delete(clientKey(clientID))
	return nil
}

func (c *MemoryCache) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	rk := rateLimitKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Add(rk, int64(1), window); err == nil {
		return 1 > int64(limit), nil
	}
	count, err := c.store.IncrementInt64(rk, 1)
	if err != nil {
		// Entry expired between Add and Increment.
		c.store.Set(rk, int64(1), window)
		count = 1
	}
	return count > int64(limit), nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Close() error {
	c.store.Flush()
	return nil
}
