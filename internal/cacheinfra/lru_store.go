package cacheinfra

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// LRUStore is a bounded store that evicts the least recently used entry
// once capacity is exceeded. Entries also expire individually.
type LRUStore[T any] struct {
	// mu makes the read-check-evict sequence atomic per store.
	mu    sync.Mutex
	cache *lru.Cache[string, Entry[T]]
	clock clockwork.Clock
}

func NewLRUStore[T any](capacity int, opts ...Option) (*LRUStore[T], error) {
	o := newOptions(opts)
	c, err := lru.New[string, Entry[T]](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUStore[T]{cache: c, clock: o.clock}, nil
}

func (s *LRUStore[T]) Get(ctx context.Context, key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	entry, ok := s.cache.Get(key)
	if !ok {
		return zero, false
	}
	if entry.IsExpired(s.clock.Now()) {
		s.cache.Remove(key)
		return zero, false
	}
	return entry.Value, true
}

func (s *LRUStore[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Add(key, NewEntry(value, s.clock.Now(), ttl))
	return nil
}

func (s *LRUStore[T]) Has(ctx context.Context, key string) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

func (s *LRUStore[T]) Invalidate(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Remove(key)
	return nil
}

func (s *LRUStore[T]) InvalidateAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Purge()
	return nil
}

// Keys returns the stored keys from least to most recently used.
func (s *LRUStore[T]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Keys()
}

func (s *LRUStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

func (s *LRUStore[T]) Close() error {
	return nil
}
