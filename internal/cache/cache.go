// Package cache provides the key/value stores behind the conversation cache.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface. A ttl of zero uses the client's
// default expiration.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// CacheKey joins key components with ':'.
func CacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}
