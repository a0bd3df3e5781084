package repositorycache

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-repository-tiered/cache"
	"github.com/goliatone/go-repository-tiered/failure"
	"github.com/goliatone/go-repository-tiered/outcome"
	"github.com/goliatone/go-repository-tiered/pkg/metrics"
	"github.com/goliatone/go-repository-tiered/repository"
)

// DefaultCacheTTL is used when Config.CacheTTL is zero.
const DefaultCacheTTL = 5 * time.Minute

// Interface assertion to ensure TieredRepository implements Repository
var _ repository.Repository[any, string] = (*TieredRepository[any, string])(nil)

// Config wires the tiers of a TieredRepository. Only Remote is required.
type Config[T any, ID comparable] struct {
	Remote repository.Repository[T, ID]
	Local  repository.Repository[T, ID]
	Cache  cache.DataSource[T]

	// CacheTTL is the lifetime of values written to Cache. Zero means
	// DefaultCacheTTL; cache.NoExpiration disables expiry.
	CacheTTL time.Duration

	// KeyBuilder maps ids to cache keys. Defaults to cache.KeyOf.
	KeyBuilder cache.KeyBuilder[ID]

	// IDOf extracts the id of an entity. When set, a successful Update
	// invalidates the cache entry of the updated entity.
	IDOf func(T) ID

	// Namespace labels logs and metrics. Defaults to the snake_case name of T.
	Namespace string

	Logger  *slog.Logger
	Metrics metrics.Recorder

	// CoalesceRemoteReads lets concurrent GetByID cache misses for the same
	// key share one remote call. The shared call runs with the context of
	// the first caller.
	CoalesceRemoteReads bool
}

func (c *Config[T, ID]) validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Remote, validation.Required),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid tiered repository configuration")
	}
	return nil
}

// TieredRepository orchestrates an optional cache, an optional local data
// source and a required remote data source. Tiers are always attempted
// one after the other, never concurrently.
type TieredRepository[T any, ID comparable] struct {
	remote    repository.Repository[T, ID]
	local     repository.Repository[T, ID]
	cache     cache.DataSource[T]
	cacheTTL  time.Duration
	keys      cache.KeyBuilder[ID]
	idOf      func(T) ID
	namespace string
	logger    *slog.Logger
	metrics   metrics.Recorder

	coalesce bool
	inflight singleflight.Group
}

// New creates a TieredRepository from cfg.
func New[T any, ID comparable](cfg Config[T, ID]) (*TieredRepository[T, ID], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r := &TieredRepository[T, ID]{
		remote:    cfg.Remote,
		local:     cfg.Local,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
		keys:      cfg.KeyBuilder,
		idOf:      cfg.IDOf,
		namespace: cfg.Namespace,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		coalesce:  cfg.CoalesceRemoteReads,
	}

	if r.cacheTTL == 0 {
		r.cacheTTL = DefaultCacheTTL
	}
	if r.keys == nil {
		r.keys = cache.KeyOf[ID]
	}
	if r.namespace == "" {
		r.namespace = namespaceOf[T]()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.metrics == nil {
		r.metrics = metrics.Nop{}
	}
	return r, nil
}

func namespaceOf[T any]() string {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := repository.SnakeCase(t.Name()); name != "" {
		return name
	}
	return repository.SnakeCase(t.String())
}

// Namespace returns the label used for logs and metrics.
func (r *TieredRepository[T, ID]) Namespace() string {
	return r.namespace
}

// GetByID reads cache, then local, then remote. A local hit populates the
// cache; a remote hit populates the cache and is persisted to local.
func (r *TieredRepository[T, ID]) GetByID(ctx context.Context, id ID) outcome.Outcome[T] {
	key := r.keys(id)

	if value, ok := r.cacheGet(ctx, key); ok {
		return outcome.Ok(value)
	}

	if r.local != nil {
		res := r.local.GetByID(ctx, id)
		r.recordTier(metrics.TierLocal, "GetByID", res.IsSuccess())
		if value, ok := res.Get(); ok {
			r.cacheSet(ctx, "GetByID", key, value)
			return res
		}
		r.fallback(ctx, "GetByID", metrics.TierLocal, res.Failure())
	}

	res := r.remoteGetByID(ctx, id, key)
	r.recordTier(metrics.TierRemote, "GetByID", res.IsSuccess())
	if value, ok := res.Get(); ok {
		r.cacheSet(ctx, "GetByID", key, value)
		r.saveLocal(ctx, "GetByID", value)
	}
	return res
}

func (r *TieredRepository[T, ID]) remoteGetByID(ctx context.Context, id ID, key string) outcome.Outcome[T] {
	if !r.coalesce {
		return r.remote.GetByID(ctx, id)
	}

	v, _, _ := r.inflight.Do(key, func() (any, error) {
		return r.remote.GetByID(ctx, id), nil
	})
	return v.(outcome.Outcome[T])
}

// GetAll always queries remote first. Every returned item is persisted to
// local independently. When remote fails and local is present, local's
// page for the same query is returned instead.
func (r *TieredRepository[T, ID]) GetAll(ctx context.Context, query repository.Query[T]) outcome.Outcome[repository.PaginatedList[T]] {
	res := r.remote.GetAll(ctx, query)
	r.recordTier(metrics.TierRemote, "GetAll", res.IsSuccess())

	if page, ok := res.Get(); ok {
		for _, item := range page.Items {
			r.saveLocal(ctx, "GetAll", item)
		}
		return res
	}
	if r.local == nil {
		return res
	}

	r.fallback(ctx, "GetAll", metrics.TierRemote, res.Failure())
	local := r.local.GetAll(ctx, query)
	r.recordTier(metrics.TierLocal, "GetAll", local.IsSuccess())
	return local
}

// Create writes to remote and persists the created entity to local.
// The cache is not touched.
func (r *TieredRepository[T, ID]) Create(ctx context.Context, entity T) outcome.Outcome[T] {
	res := r.remote.Create(ctx, entity)
	r.recordTier(metrics.TierRemote, "Create", res.IsSuccess())
	if created, ok := res.Get(); ok {
		r.saveLocal(ctx, "Create", created)
	}
	return res
}

// Update writes to remote and mirrors the result to local. When IDOf is
// configured the cache entry of the entity is invalidated.
func (r *TieredRepository[T, ID]) Update(ctx context.Context, entity T) outcome.Outcome[T] {
	res := r.remote.Update(ctx, entity)
	r.recordTier(metrics.TierRemote, "Update", res.IsSuccess())

	updated, ok := res.Get()
	if !ok {
		return res
	}

	if r.local != nil {
		local := r.local.Update(ctx, updated)
		if f := local.Failure(); f != nil && f.Kind == failure.KindNotFound {
			local = r.local.Create(ctx, updated)
		}
		if f := local.Failure(); f != nil {
			r.mirrorFailed(ctx, metrics.TierLocal, "Update", f)
		}
	}
	if r.idOf != nil {
		r.cacheInvalidate(ctx, "Update", r.keys(r.idOf(updated)))
	}
	return res
}

// Delete removes the entity from remote, then from local and the cache.
func (r *TieredRepository[T, ID]) Delete(ctx context.Context, id ID) outcome.Outcome[outcome.Unit] {
	res := r.remote.Delete(ctx, id)
	r.recordTier(metrics.TierRemote, "Delete", res.IsSuccess())
	if res.IsFailure() {
		return res
	}

	if r.local != nil {
		if f := r.local.Delete(ctx, id).Failure(); f != nil {
			r.mirrorFailed(ctx, metrics.TierLocal, "Delete", f)
		}
	}
	r.cacheInvalidate(ctx, "Delete", r.keys(id))
	return res
}

// CreateMany writes the batch to remote. Local is only touched when the
// remote batch succeeds as a whole.
func (r *TieredRepository[T, ID]) CreateMany(ctx context.Context, entities []T) outcome.Outcome[[]T] {
	res := r.remote.CreateMany(ctx, entities)
	r.recordTier(metrics.TierRemote, "CreateMany", res.IsSuccess())

	created, ok := res.Get()
	if !ok || r.local == nil {
		return res
	}

	if f := r.local.CreateMany(ctx, created).Failure(); f != nil {
		r.logger.DebugContext(ctx, "local batch create failed, saving items one by one",
			append([]any{"entity", r.namespace, "count", len(created)}, f.LogAttrs()...)...)
		for _, item := range created {
			r.saveLocal(ctx, "CreateMany", item)
		}
	}
	return res
}

// DeleteMany deletes the batch from remote. On success the ids are deleted
// from local and every id's cache entry is invalidated.
func (r *TieredRepository[T, ID]) DeleteMany(ctx context.Context, ids []ID) outcome.Outcome[outcome.Unit] {
	res := r.remote.DeleteMany(ctx, ids)
	r.recordTier(metrics.TierRemote, "DeleteMany", res.IsSuccess())
	if res.IsFailure() {
		return res
	}

	if r.local != nil {
		if f := r.local.DeleteMany(ctx, ids).Failure(); f != nil {
			r.mirrorFailed(ctx, metrics.TierLocal, "DeleteMany", f)
		}
	}
	for _, id := range ids {
		r.cacheInvalidate(ctx, "DeleteMany", r.keys(id))
	}
	return res
}

// WatchAll streams snapshots from local when present, else from remote.
func (r *TieredRepository[T, ID]) WatchAll(ctx context.Context) <-chan []T {
	if r.local != nil {
		return r.local.WatchAll(ctx)
	}
	return r.remote.WatchAll(ctx)
}

// Exists checks cache, local and remote in order and stops at the first
// tier reporting true. A false or failed answer moves on to the next tier;
// remote's answer is final.
func (r *TieredRepository[T, ID]) Exists(ctx context.Context, id ID) outcome.Outcome[bool] {
	if r.cache != nil {
		hit := r.cache.Has(ctx, r.keys(id))
		r.metrics.CacheLookup(r.namespace, hit)
		if hit {
			return outcome.Ok(true)
		}
	}

	if r.local != nil {
		res := r.local.Exists(ctx, id)
		r.recordTier(metrics.TierLocal, "Exists", res.IsSuccess())
		if found, ok := res.Get(); ok && found {
			return res
		}
		if res.IsFailure() {
			r.fallback(ctx, "Exists", metrics.TierLocal, res.Failure())
		}
	}

	res := r.remote.Exists(ctx, id)
	r.recordTier(metrics.TierRemote, "Exists", res.IsSuccess())
	return res
}

// Count prefers remote and falls back to local on failure.
func (r *TieredRepository[T, ID]) Count(ctx context.Context, filter *repository.Filter[T]) outcome.Outcome[int] {
	res := r.remote.Count(ctx, filter)
	r.recordTier(metrics.TierRemote, "Count", res.IsSuccess())
	if res.IsSuccess() || r.local == nil {
		return res
	}

	r.fallback(ctx, "Count", metrics.TierRemote, res.Failure())
	local := r.local.Count(ctx, filter)
	r.recordTier(metrics.TierLocal, "Count", local.IsSuccess())
	return local
}

// FindFirst tries local first and falls back to remote when local has no
// match, fails or is absent.
func (r *TieredRepository[T, ID]) FindFirst(ctx context.Context, filter repository.Filter[T]) outcome.Outcome[T] {
	if r.local != nil {
		res := r.local.FindFirst(ctx, filter)
		r.recordTier(metrics.TierLocal, "FindFirst", res.IsSuccess())
		if res.IsSuccess() {
			return res
		}
		r.fallback(ctx, "FindFirst", metrics.TierLocal, res.Failure())
	}

	res := r.remote.FindFirst(ctx, filter)
	r.recordTier(metrics.TierRemote, "FindFirst", res.IsSuccess())
	return res
}

// ForceRefresh invalidates the cache entry, fetches id from remote and on
// success repopulates the cache and local. The result is never older than
// remote at call time.
func (r *TieredRepository[T, ID]) ForceRefresh(ctx context.Context, id ID) outcome.Outcome[T] {
	key := r.keys(id)
	r.cacheInvalidate(ctx, "ForceRefresh", key)

	res := r.remote.GetByID(ctx, id)
	r.recordTier(metrics.TierRemote, "ForceRefresh", res.IsSuccess())
	if value, ok := res.Get(); ok {
		r.cacheSet(ctx, "ForceRefresh", key, value)
		r.saveLocal(ctx, "ForceRefresh", value)
	}
	return res
}

// InvalidateCache drops the cache entry for id.
func (r *TieredRepository[T, ID]) InvalidateCache(ctx context.Context, id ID) outcome.Outcome[outcome.Unit] {
	if r.cache == nil {
		return outcome.Done()
	}
	if err := r.cache.Invalidate(ctx, r.keys(id)); err != nil {
		return outcome.Err[outcome.Unit](cacheFailure(err, "Invalidate"))
	}
	return outcome.Done()
}

// InvalidateAllCaches empties the cache.
func (r *TieredRepository[T, ID]) InvalidateAllCaches(ctx context.Context) outcome.Outcome[outcome.Unit] {
	if r.cache == nil {
		return outcome.Done()
	}
	if err := r.cache.InvalidateAll(ctx); err != nil {
		return outcome.Err[outcome.Unit](cacheFailure(err, "InvalidateAll"))
	}
	return outcome.Done()
}

func cacheFailure(err error, operation string) *failure.Failure {
	return failure.Cache(err.Error(),
		failure.WithCause(err),
		failure.WithContext(map[string]any{"operation": operation}),
	)
}

func (r *TieredRepository[T, ID]) cacheGet(ctx context.Context, key string) (T, bool) {
	if r.cache == nil {
		var zero T
		return zero, false
	}
	value, ok := r.cache.Get(ctx, key)
	r.metrics.CacheLookup(r.namespace, ok)
	return value, ok
}

func (r *TieredRepository[T, ID]) cacheSet(ctx context.Context, operation, key string, value T) {
	if r.cache == nil {
		return
	}
	ttl := r.cacheTTL
	if override, ok := cacheTTLFromContext(ctx); ok {
		ttl = override
	}
	if err := r.cache.Set(ctx, key, value, ttl); err != nil {
		r.mirrorFailed(ctx, metrics.TierCache, operation, cacheFailure(err, "Set"))
	}
}

func (r *TieredRepository[T, ID]) cacheInvalidate(ctx context.Context, operation, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, key); err != nil {
		r.mirrorFailed(ctx, metrics.TierCache, operation, cacheFailure(err, "Invalidate"))
	}
}

// saveLocal persists value to local with Create, retrying as Update when
// local already holds the entity.
func (r *TieredRepository[T, ID]) saveLocal(ctx context.Context, operation string, value T) {
	if r.local == nil {
		return
	}

	res := r.local.Create(ctx, value)
	if f := res.Failure(); f != nil && f.Kind == failure.KindConflict {
		res = r.local.Update(ctx, value)
	}
	if f := res.Failure(); f != nil {
		r.mirrorFailed(ctx, metrics.TierLocal, operation, f)
	}
}

func (r *TieredRepository[T, ID]) recordTier(tier, operation string, success bool) {
	r.metrics.TierCall(r.namespace, tier, operation, success)
}

func (r *TieredRepository[T, ID]) fallback(ctx context.Context, operation, from string, f *failure.Failure) {
	r.metrics.Fallback(r.namespace, operation, from)
	if f == nil {
		return
	}
	r.logger.DebugContext(ctx, "tier failed, falling back",
		append([]any{"entity", r.namespace, "operation", operation, "tier", from}, f.LogAttrs()...)...)
}

func (r *TieredRepository[T, ID]) mirrorFailed(ctx context.Context, tier, operation string, f *failure.Failure) {
	r.metrics.MirrorFailure(r.namespace, tier, operation)
	r.logger.WarnContext(ctx, "mirror write failed",
		append([]any{"entity", r.namespace, "operation", operation, "tier", tier}, f.LogAttrs()...)...)
}
