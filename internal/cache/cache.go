package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache defines the cache interface. Its main consumer is the session
// denylist: logging out stores the token's jti for the token's
// remaining lifetime, after which the entry may expire on its own.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// ErrCacheMiss is returned when a key is not found in cache
var ErrCacheMiss = fmt.Errorf("cache miss")

// DenylistKey builds the key under which a revoked session token is stored
func DenylistKey(tokenID string) string {
	return "session:denylist:" + tokenID
}
