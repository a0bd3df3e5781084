package cache

import (
	"context"
	"io"
	"time"

	"github.com/goliatone/go-repository-tiered/internal/cacheinfra"
)

// NoExpiration stores a value that never expires.
const NoExpiration time.Duration = -1

// DataSource is the cache contract consumed by the tiered repository.
// Implementations must be safe for concurrent use and must never return
// an expired value from Get.
type DataSource[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	// Set stores value for ttl. A negative ttl never expires and a zero ttl
	// expires as soon as any time has elapsed.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	InvalidateAll(ctx context.Context) error
	Has(ctx context.Context, key string) bool
}

// Store is a DataSource owning background resources released by Close.
type Store[T any] interface {
	DataSource[T]
	io.Closer
}

// Entry is a cached value plus its creation and expiry timestamps.
type Entry[T any] = cacheinfra.Entry[T]

// NewEntry stamps value with now and ttl.
func NewEntry[T any](value T, now time.Time, ttl time.Duration) Entry[T] {
	return cacheinfra.NewEntry(value, now, ttl)
}

// Option customizes store construction.
type Option = cacheinfra.Option

// WithClock and WithSweepInterval are re-exported store options.
var (
	WithClock         = cacheinfra.WithClock
	WithSweepInterval = cacheinfra.WithSweepInterval
)

// NewDataSource constructs the store selected by cfg.Backend.
func NewDataSource[T any](cfg Config, opts ...Option) (Store[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	internal := cfg.toInternal()
	switch internal.Backend {
	case cacheinfra.BackendLRU:
		store, err := cacheinfra.NewLRUStore[T](internal.Capacity, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case cacheinfra.BackendSturdyc:
		store, err := cacheinfra.NewSturdycStore[T](internal, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		opts = append([]Option{cacheinfra.WithSweepInterval(internal.SweepInterval)}, opts...)
		return cacheinfra.NewTTLStore[T](opts...), nil
	}
}
