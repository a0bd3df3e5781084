// Package repositorycache orchestrates a cache, a local data source and a
// remote data source behind a single repository.Repository.
//
// # Overview
//
// TieredRepository reads through the tiers in order and writes through the
// remote tier first. Only Remote is required; Local and Cache are optional.
//
//	users, err := repositorycache.New(repositorycache.Config[User, string]{
//		Remote: apiUsers,
//		Local:  sqliteUsers,
//		Cache:  userCache,
//	})
//
//	res := users.GetByID(ctx, "42")
//	user, err := res.Unwrap()
//
// # Reads
//
//   - GetByID: cache, then local, then remote. A local hit fills the cache;
//     a remote hit fills the cache and is saved to local.
//   - GetAll and Count: remote first, local when remote fails.
//   - FindFirst: local first, remote when local has no match.
//   - Exists: cache, local, remote, stopping at the first true.
//
// # Writes
//
// Create, Update, Delete, CreateMany and DeleteMany go to remote. Only after
// remote succeeds are they mirrored to local; deletes also invalidate the
// cache. Mirroring errors are logged at warn level and never replace the
// remote result.
//
// # Cache control
//
// ForceRefresh bypasses every tier except remote and repopulates the others.
// InvalidateCache and InvalidateAllCaches drop cached values. WithCacheTTL
// overrides the configured TTL for a single call:
//
//	ctx = repositorycache.WithCacheTTL(ctx, time.Minute)
//	users.GetByID(ctx, "42")
//
// # Coalescing
//
// With CoalesceRemoteReads concurrent GetByID misses for the same key share
// one remote call.
package repositorycache
