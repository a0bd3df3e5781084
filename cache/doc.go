// Package cache provides the cache contract used by the tiered repository,
// the store backends behind it and the key builders that map entity ids
// to cache keys.
//
// # Overview
//
//   - DataSource: Get, Set, Invalidate, InvalidateAll and Has over string keys
//   - Store: a DataSource that owns background resources and must be closed
//   - KeySerializer / KeyBuilder: stable keys from ids and arbitrary values
//   - Config: backend selection and sizing, loadable from YAML
//
// # Backends
//
// NewDataSource picks a store from Config.Backend:
//
//   - "ttl" (default): unbounded map with per-key atomic eviction and an
//     optional background sweeper
//   - "lru": bounded store evicting the least recently used entry
//   - "sturdyc": sharded sturdyc client; entries never outlive Config.TTL
//
// Every backend honours the ttl passed to Set. A negative ttl (NoExpiration)
// never expires, a zero ttl expires as soon as any time has elapsed.
//
//	cfg, err := cache.LoadConfig("cache.yaml")
//	if err != nil {
//		return err
//	}
//	users, err := cache.NewDataSource[User](cfg)
//	if err != nil {
//		return err
//	}
//	defer users.Close()
//
//	_ = users.Set(ctx, "42", user, cfg.TTL)
//	u, ok := users.Get(ctx, "42")
//
// # Keys
//
// KeyOf renders an id on its own, so id "42" maps to key "42". Caches shared
// by several entity types should use NamespacedKeys, which prefixes keys
// with a namespace joined by KeySeparator:
//
//	keys := cache.NamespacedKeys[string]("user", nil)
//	keys("42") // "user::42"
//
// The default serializer handles basic types, named types, Stringers,
// slices, arrays, maps (sorted), structs (exported fields) and falls back to
// JSON. Function and channel values are keyed by pointer and are only stable
// within one process. Keys longer than MaxKeyLength keep their prefix and
// replace the arguments with an xxhash digest.
//
// # Configuration
//
//	backend: lru
//	capacity: 5000
//	ttl: 10m
//	sweep_interval: 1m
//
// ParseConfig and LoadConfig start from DefaultConfig, so omitted fields keep
// their defaults. Validation errors are go-errors validation errors with one
// field error per invalid setting.
package cache
