package di

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goliatone/go-repository-tiered/cache"
	"github.com/goliatone/go-repository-tiered/datasource/memory"
)

// TestConcurrentAccess checks that concurrent readers of the same ids are
// coalesced into a single remote call per id.
func TestConcurrentAccess(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}
	defer container.Close()

	probe := newRemoteProbe()
	gate := make(chan struct{})
	remote := memory.New[User, string](userID, memory.WithFault(func(ctx context.Context, op string) error {
		<-gate
		return probe.fault(ctx, op)
	}))

	const numUsers = 5
	for i := 0; i < numUsers; i++ {
		remote.Seed(User{ID: fmt.Sprintf("concurrent-user-%d", i), Name: fmt.Sprintf("User %d", i)})
	}

	repo, err := NewTieredRepository(container, TieredOptions[User, string]{
		Remote:              remote,
		Namespace:           "user",
		IDOf:                userID,
		CoalesceRemoteReads: true,
	})
	if err != nil {
		t.Fatalf("Failed to create tiered repository: %v", err)
	}

	const readersPerUser = 10
	var wg sync.WaitGroup
	errs := make(chan error, numUsers*readersPerUser)

	for i := 0; i < numUsers; i++ {
		for j := 0; j < readersPerUser; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if res := repo.GetByID(context.Background(), id); res.IsFailure() {
					errs <- res.Failure()
				}
			}(fmt.Sprintf("concurrent-user-%d", i))
		}
	}

	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent read failed: %v", err)
	}

	calls := probe.getCallCount("GetByID")
	if calls < numUsers || calls > numUsers*readersPerUser {
		t.Errorf("Unexpected remote call count %d", calls)
	}

	// Every id is now cached
	before := probe.getCallCount("GetByID")
	for i := 0; i < numUsers; i++ {
		repo.GetByID(context.Background(), fmt.Sprintf("concurrent-user-%d", i))
	}
	if after := probe.getCallCount("GetByID"); after != before {
		t.Errorf("Expected cached reads, remote calls went from %d to %d", before, after)
	}
}

// TestConcurrentReadWrite runs readers and writers against the full stack
// and relies on the race detector for correctness.
func TestConcurrentReadWrite(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	const numUsers = 20
	for i := 0; i < numUsers; i++ {
		s.remote.Seed(User{ID: fmt.Sprintf("rw-user-%d", i)})
	}

	var wg sync.WaitGroup
	for i := 0; i < numUsers; i++ {
		id := fmt.Sprintf("rw-user-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for n := 0; n < 5; n++ {
				s.repo.GetByID(ctx, id)
			}
		}()
		go func(n int) {
			defer wg.Done()
			if res := s.repo.Update(ctx, User{ID: id, Name: fmt.Sprintf("updated-%d", n)}); res.IsFailure() {
				t.Errorf("Update %s failed: %v", id, res.Failure())
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < numUsers; i++ {
		id := fmt.Sprintf("rw-user-%d", i)
		user, ok := s.repo.ForceRefresh(ctx, id).Get()
		if !ok {
			t.Fatalf("ForceRefresh %s failed", id)
		}
		if want := fmt.Sprintf("updated-%d", i); user.Name != want {
			t.Errorf("Expected %s to be %q, got %q", id, want, user.Name)
		}
	}
}

func BenchmarkKeySerializationPerformance(b *testing.B) {
	serializer := cache.NewDefaultKeySerializer()

	testCases := []struct {
		name string
		args []any
	}{
		{"simple_string", []any{"user-123"}},
		{"int_id", []any{42}},
		{"composite", []any{"tenant-7", 42, true}},
		{"map_arg", []any{map[string]any{"status": "active", "role": "admin"}}},
	}

	for _, tc := range testCases {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = serializer.SerializeKey("user", tc.args...)
			}
		})
	}
}

// BenchmarkTieredVsRemote compares cached reads with direct remote reads.
func BenchmarkTieredVsRemote(b *testing.B) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		b.Fatalf("Failed to create DI container: %v", err)
	}
	defer container.Close()

	remote := memory.New[User, string](userID)
	for i := 0; i < 1000; i++ {
		remote.Seed(User{ID: fmt.Sprintf("bench-user-%d", i), Name: fmt.Sprintf("Benchmark User %d", i)})
	}

	repo, err := NewTieredRepository(container, TieredOptions[User, string]{
		Remote:    remote,
		Namespace: "user",
		IDOf:      userID,
	})
	if err != nil {
		b.Fatalf("Failed to create tiered repository: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		repo.GetByID(ctx, fmt.Sprintf("bench-user-%d", i))
	}

	b.Run("remote_GetByID", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			remote.GetByID(ctx, fmt.Sprintf("bench-user-%d", i%1000))
		}
	})

	b.Run("tiered_GetByID_cached", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			repo.GetByID(ctx, fmt.Sprintf("bench-user-%d", i%1000))
		}
	})

	b.Run("tiered_GetByID_parallel", func(b *testing.B) {
		b.ReportAllocs()
		b.RunParallel(func(pb *testing.PB) {
			i := 0
			for pb.Next() {
				repo.GetByID(ctx, fmt.Sprintf("bench-user-%d", i%1000))
				i++
			}
		})
	})
}
