package cacheinfra

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"
	"github.com/viccon/sturdyc"
)

const keyLockStripes = 64

// SturdycStore keeps Entry values in a sturdyc client so that per-key
// expiry is honoured on top of sturdyc's own sharding and eviction.
// An entry never outlives the client TTL, whatever ttl Set was given.
type SturdycStore[T any] struct {
	client *sturdyc.Client[Entry[T]]
	clock  clockwork.Clock

	// locks serialize the check-then-delete on expired reads with writes to
	// the same key.
	locks [keyLockStripes]sync.Mutex
}

// NewSturdycStore creates a sturdyc backed store.
// It validates the configuration and initializes a sturdyc client with the provided settings.
//
// Capacity, NumShards, TTL and EvictionPercentage are passed to sturdyc.New();
// SweepInterval maps to sturdyc.WithEvictionInterval.
func NewSturdycStore[T any](cfg Config, opts ...Option) (*SturdycStore[T], error) {
	cfg.Backend = BackendSturdyc
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)

	client := sturdyc.New[Entry[T]](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		sturdycOptions(cfg)...,
	)

	return &SturdycStore[T]{client: client, clock: o.clock}, nil
}

func sturdycOptions(cfg Config) []sturdyc.Option {
	var options []sturdyc.Option
	if cfg.SweepInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(cfg.SweepInterval))
	}
	return options
}

func (s *SturdycStore[T]) lockFor(key string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(key)%keyLockStripes]
}

func (s *SturdycStore[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T

	entry, ok := s.client.Get(key)
	if !ok {
		return zero, false
	}
	if !entry.IsExpired(s.clock.Now()) {
		return entry.Value, true
	}

	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()
	if current, ok := s.client.Get(key); ok && current.IsExpired(s.clock.Now()) {
		s.client.Delete(key)
	}
	return zero, false
}

func (s *SturdycStore[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	s.client.Set(key, NewEntry(value, s.clock.Now(), ttl))
	return nil
}

func (s *SturdycStore[T]) Has(ctx context.Context, key string) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

// Invalidate removes a single entry from the cache.
func (s *SturdycStore[T]) Invalidate(ctx context.Context, key string) error {
	mu := s.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	s.client.Delete(key)
	return nil
}

// InvalidateAll removes every key known to the client.
func (s *SturdycStore[T]) InvalidateAll(ctx context.Context) error {
	for _, key := range s.client.ScanKeys() {
		if err := s.Invalidate(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *SturdycStore[T]) Len() int {
	return s.client.Size()
}

func (s *SturdycStore[T]) Close() error {
	return nil
}
