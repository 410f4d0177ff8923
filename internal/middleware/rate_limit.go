package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"authorization-server/internal/cache"

	"go.uber.org/zap"
)

// ClientLimits returns a client's own limit, or 0 to use the default.
type ClientLimits interface {
	RateLimit(ctx context.Context, clientID string) int
}

type bucket struct {
	key   string
	limit int
}

// RateLimitMiddleware limits requests per remote address and, when a
// client_id is present, per client_id and address together. The client_id
// is not authenticated yet, so it never gets a bucket of its own: one
// address cannot drain a client's quota elsewhere, and rotating ids does
// not escape the address bucket.
func RateLimitMiddleware(c cache.Cache, limits ClientLimits, logger *zap.Logger, defaultLimit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if defaultLimit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			host := remoteHost(r)
			buckets := []bucket{{key: "ip:" + host, limit: defaultLimit}}
			if clientID := requestClientID(r); clientID != "" {
				limit := defaultLimit
				if limits != nil {
					if l := limits.RateLimit(ctx, clientID); l > 0 {
						limit = l
					}
				}
				if limit > buckets[0].limit {
					buckets[0].limit = limit
				}
				buckets = append(buckets, bucket{key: "client:" + clientID + "@" + host, limit: limit})
			}

			for _, b := range buckets {
				exceeded, err := c.CheckRateLimit(ctx, b.key, b.limit, window)
				if err != nil {
					// Fail open; the cache being down must not take the token endpoint with it.
					logger.Error("Rate limit check failed", zap.String("key", b.key), zap.Error(err))
					continue
				}
				if exceeded {
					logger.Warn("Rate limit exceeded", zap.String("key", b.key), zap.Int("limit", b.limit))
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
					w.WriteHeader(http.StatusTooManyRequests)
					json.NewEncoder(w).Encode(map[string]string{
						"error":             "temporarily_unavailable",
						"error_description": "Rate limit exceeded",
					})
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestClientID reads client_id from Basic credentials or the form body.
func requestClientID(r *http.Request) string {
	if id, _, ok := r.BasicAuth(); ok && id != "" {
		return id
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			return r.PostForm.Get("client_id")
		}
	}
	return r.URL.Query().Get("client_id")
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
