package cacheinfra

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
)

// TTLStore is an unbounded in-memory store with per-entry expiry.
// Expired entries are evicted lazily on read and, when a sweep interval
// is configured, by a background sweeper owned by the store.
type TTLStore[T any] struct {
	entries *xsync.MapOf[string, Entry[T]]
	clock   clockwork.Clock

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTTLStore creates a TTL store. Call Close to stop the sweeper.
func NewTTLStore[T any](opts ...Option) *TTLStore[T] {
	o := newOptions(opts)
	s := &TTLStore[T]{
		entries: xsync.NewMapOf[string, Entry[T]](),
		clock:   o.clock,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if o.sweepInterval > 0 {
		go s.sweepLoop(o.sweepInterval)
	} else {
		close(s.done)
	}
	return s
}

func (s *TTLStore[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T

	entry, ok := s.entries.Load(key)
	if !ok {
		return zero, false
	}
	if !entry.IsExpired(s.clock.Now()) {
		return entry.Value, true
	}

	s.evictIfExpired(key)
	return zero, false
}

func (s *TTLStore[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	s.entries.Store(key, NewEntry(value, s.clock.Now(), ttl))
	return nil
}

func (s *TTLStore[T]) Has(ctx context.Context, key string) bool {
	_, ok := s.Get(ctx, key)
	return ok
}

func (s *TTLStore[T]) Invalidate(ctx context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

func (s *TTLStore[T]) InvalidateAll(ctx context.Context) error {
	s.entries.Clear()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *TTLStore[T]) Len() int {
	return s.entries.Size()
}

// Sweep removes every expired entry and returns how many were removed.
func (s *TTLStore[T]) Sweep() int {
	var keys []string
	now := s.clock.Now()
	s.entries.Range(func(key string, entry Entry[T]) bool {
		if entry.IsExpired(now) {
			keys = append(keys, key)
		}
		return true
	})

	removed := 0
	for _, key := range keys {
		if s.evictIfExpired(key) {
			removed++
		}
	}
	return removed
}

// Close stops the background sweeper. It is safe to call more than once.
func (s *TTLStore[T]) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	return nil
}

// evictIfExpired deletes key only if the stored entry is still expired, so
// a concurrent Set is never lost.
func (s *TTLStore[T]) evictIfExpired(key string) bool {
	evicted := false
	s.entries.Compute(key, func(old Entry[T], loaded bool) (Entry[T], bool) {
		if !loaded {
			return old, true
		}
		if old.IsExpired(s.clock.Now()) {
			evicted = true
			return old, true
		}
		return old, false
	})
	return evicted
}

func (s *TTLStore[T]) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}
