package cache

import (
	"context"
	"time"
)

// Cache is the local response cache sitting in front of upstream dispatch.
// Keys are the content-derived dispatch cache keys; values are serialized
// unified responses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
