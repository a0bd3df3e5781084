package repositorycache

import (
	"context"
	"time"
)

type cacheTTLContextKey struct{}

// WithCacheTTL overrides the cache TTL used by reads made with the returned
// context. Use cache.NoExpiration to cache without expiry.
func WithCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, cacheTTLContextKey{}, ttl)
}

func cacheTTLFromContext(ctx context.Context) (time.Duration, bool) {
	if ctx == nil {
		return 0, false
	}
	ttl, ok := ctx.Value(cacheTTLContextKey{}).(time.Duration)
	return ttl, ok
}
