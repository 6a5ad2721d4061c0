package cache

import (
	"context"
	"time"
)

// Cache is a best-effort layer in front of the cart store. Callers must
// treat every error as a miss: correctness never depends on the cache.
type Cache interface {
	Get(ctx context.Context, key string, value any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func Key(prefix string, id string) string {
	return prefix + ":" + id
}

const (
	CartKeyPrefix = "cart"
)
