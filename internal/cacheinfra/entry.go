package cacheinfra

import "time"

// Entry is a cached value with its creation and expiry timestamps.
// A zero ExpiresAt means the entry never expires.
type Entry[T any] struct {
	Value     T
	CachedAt  time.Time
	ExpiresAt time.Time
}

// NewEntry stamps value with now. A negative ttl never expires; any other
// ttl expires once now+ttl has passed, so a zero ttl expires as soon as
// time moves forward.
func NewEntry[T any](value T, now time.Time, ttl time.Duration) Entry[T] {
	e := Entry[T]{Value: value, CachedAt: now}
	if ttl >= 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e
}

// IsExpired reports whether the entry is past its expiry at now.
func (e Entry[T]) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
