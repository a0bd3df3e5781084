// Package watch fans snapshots of a data source out to WatchAll subscribers.
package watch

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Broadcaster delivers the latest snapshot to every subscriber. Slow
// subscribers skip intermediate snapshots and only see the newest one.
//
// Broadcaster is safe for concurrent use.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[string]chan []T
	closed bool
	done   chan struct{}
}

// New creates an empty broadcaster.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subs: make(map[string]chan []T),
		done: make(chan struct{}),
	}
}

// Subscribe returns a channel that first yields initial and then every
// published snapshot. The channel is closed when ctx is done or the
// broadcaster is closed.
func (b *Broadcaster[T]) Subscribe(ctx context.Context, initial []T) <-chan []T {
	ch := make(chan []T, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	id := uuid.NewString()
	ch <- clone(initial)
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(id)
		case <-b.done:
		}
	}()

	return ch
}

// Publish sends snapshot to all subscribers.
func (b *Broadcaster[T]) Publish(snapshot []T) {
	snapshot = clone(snapshot)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- snapshot:
			continue
		default:
		}
		// replace the unread snapshot
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *Broadcaster[T]) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

func clone[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}
