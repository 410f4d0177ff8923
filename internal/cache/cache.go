package cache

import (
	"context"
	"time"

	"authorization-server/internal/models"
)

// Cache stores client registrations and rate-limit counters. Get methods
// return (nil, nil) on a miss.
type Cache interface {
	GetClient(ctx context.Context, clientID string) (*models.Client, error)
	SetClient(ctx context.Context, client *models.Client, ttl time.Duration) error
	DeleteClient(ctx context.Context, clientID string) error
	// CheckRateLimit counts one hit for key and reports whether the count
	// within the current window exceeds limit.
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

func clientKey(clientID string) string {
	return "client:" + clientID
}

func rateLimitKey(key string) string {
	return "rate_limit:" + key
}
