package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jonboulle/clockwork"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend != BackendTTL {
		t.Errorf("expected Backend to be %q, got %q", BackendTTL, cfg.Backend)
	}

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}

	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}

	if cfg.TTL != 5*time.Minute {
		t.Errorf("expected TTL to be 5 minutes, got %v", cfg.TTL)
	}

	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage to be 10, got %d", cfg.EvictionPercentage)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "empty backend means ttl", mutate: func(c *Config) { c.Backend = "" }},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "redis" }, wantField: "backend"},
		{name: "ttl backend ignores capacity", mutate: func(c *Config) { c.Capacity = 0 }},
		{
			name:      "lru needs capacity",
			mutate:    func(c *Config) { c.Backend = BackendLRU; c.Capacity = 0 },
			wantField: "capacity",
		},
		{
			name:      "sturdyc needs shards",
			mutate:    func(c *Config) { c.Backend = BackendSturdyc; c.NumShards = 0 },
			wantField: "num_shards",
		},
		{
			name:      "eviction percentage too high",
			mutate:    func(c *Config) { c.Backend = BackendSturdyc; c.EvictionPercentage = 101 },
			wantField: "eviction_percentage",
		},
		{name: "zero ttl", mutate: func(c *Config) { c.TTL = 0 }, wantField: "ttl"},
		{name: "negative ttl", mutate: func(c *Config) { c.TTL = -time.Second }, wantField: "ttl"},
		{name: "negative sweep", mutate: func(c *Config) { c.SweepInterval = -time.Second }, wantField: "sweep_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("expected validation error, got nil")
			}

			var rich *goerrors.Error
			if !errors.As(err, &rich) {
				t.Fatalf("expected *goerrors.Error, got %T", err)
			}
			if rich.Category != goerrors.CategoryValidation {
				t.Errorf("expected validation category, got %s", rich.Category)
			}

			found := false
			for _, fe := range rich.AllValidationErrors() {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected field error for %q, got %v", tt.wantField, rich.AllValidationErrors())
			}
		})
	}
}

func TestNewSturdycStore_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 0

	if _, err := NewSturdycStore[string](cfg); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestSturdycStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()

	store, err := NewSturdycStore[string](DefaultConfig(), WithClock(clock))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	if err := store.Set(ctx, "user::1", "ada", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, ok := store.Get(ctx, "user::1")
	if !ok || got != "ada" {
		t.Fatalf("expected hit with ada, got %q (hit=%v)", got, ok)
	}

	if !store.Has(ctx, "user::1") {
		t.Error("expected Has to report true")
	}

	if _, ok := store.Get(ctx, "user::2"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestSturdycStore_PerEntryExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()

	store, err := NewSturdycStore[int](DefaultConfig(), WithClock(clock))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = store.Set(ctx, "short", 1, 0)
	_ = store.Set(ctx, "long", 2, time.Hour)

	clock.Advance(time.Millisecond)

	if _, ok := store.Get(ctx, "short"); ok {
		t.Error("expected zero ttl entry to expire once time moved")
	}
	if v, ok := store.Get(ctx, "long"); !ok || v != 2 {
		t.Errorf("expected long entry to survive, got %d (hit=%v)", v, ok)
	}
	if store.Len() != 1 {
		t.Errorf("expected expired entry to be evicted on read, len=%d", store.Len())
	}
}

func TestSturdycStore_Invalidate(t *testing.T) {
	ctx := context.Background()

	store, err := NewSturdycStore[string](DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 5; i++ {
		_ = store.Set(ctx, fmt.Sprintf("k%d", i), "v", time.Minute)
	}

	if err := store.Invalidate(ctx, "k0"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if store.Has(ctx, "k0") {
		t.Error("expected k0 to be gone")
	}
	if !store.Has(ctx, "k1") {
		t.Error("expected k1 to remain")
	}

	if err := store.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate all failed: %v", err)
	}
	for i := 1; i < 5; i++ {
		if store.Has(ctx, fmt.Sprintf("k%d", i)) {
			t.Errorf("expected k%d to be gone after InvalidateAll", i)
		}
	}
}

func TestSturdycStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store, err := NewSturdycStore[int](DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%4)
			for j := 0; j < 100; j++ {
				_ = store.Set(ctx, key, j, time.Minute)
				store.Get(ctx, key)
				if j%10 == 0 {
					_ = store.Invalidate(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()
}
