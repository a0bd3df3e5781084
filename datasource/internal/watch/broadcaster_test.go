package watch

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan []T) []T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestBroadcaster_InitialAndPublish(t *testing.T) {
	b := New[int]()
	ch := b.Subscribe(context.Background(), []int{1})

	assert.Equal(t, []int{1}, receive(t, ch))

	b.Publish([]int{1, 2})
	assert.Equal(t, []int{1, 2}, receive(t, ch))
}

func TestBroadcaster_LatestWins(t *testing.T) {
	b := New[int]()
	ch := b.Subscribe(context.Background(), nil)

	b.Publish([]int{1})
	b.Publish([]int{1, 2})
	b.Publish([]int{1, 2, 3})

	assert.Equal(t, []int{1, 2, 3}, receive(t, ch))
}

func TestBroadcaster_SnapshotsAreCopied(t *testing.T) {
	b := New[int]()
	ch := b.Subscribe(context.Background(), nil)
	receive(t, ch)

	src := []int{1, 2}
	b.Publish(src)
	src[0] = 99

	assert.Equal(t, []int{1, 2}, receive(t, ch))
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx, []string{"a"})
	require.Equal(t, 1, b.Len())
	receive(t, ch)

	cancel()

	require.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcaster_Close(t *testing.T) {
	b := New[string]()
	ch := b.Subscribe(context.Background(), nil)
	receive(t, ch)

	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late := b.Subscribe(context.Background(), []string{"x"})
	_, ok = <-late
	assert.False(t, ok)
	assert.Zero(t, b.Len())
}

func TestBroadcaster_CloseReleasesSubscriberGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()

	b := New[int]()
	for range 50 {
		b.Subscribe(context.Background(), nil)
	}
	require.GreaterOrEqual(t, runtime.NumGoroutine(), before+50)

	b.Close()

	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before },
		time.Second, 5*time.Millisecond)
}
