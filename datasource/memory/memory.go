// Package memory provides an in-process repository.Repository.
//
// It keeps entities in insertion order, evaluates filters in process and
// can simulate latency and faults, which makes it a stand-in for a remote
// service in tests and demos.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/goliatone/go-repository-tiered/datasource/internal/watch"
	"github.com/goliatone/go-repository-tiered/failure"
	"github.com/goliatone/go-repository-tiered/outcome"
	"github.com/goliatone/go-repository-tiered/repository"
)

var _ repository.Repository[any, string] = (*Repository[any, string])(nil)

// Fault decides whether operation op fails. A non-nil error is converted
// with failure.MapError and returned instead of running the operation.
type Fault func(ctx context.Context, op string) error

type options struct {
	clock   clockwork.Clock
	latency time.Duration
	fault   Fault
}

// Option configures a Repository.
type Option func(*options)

// WithClock sets the clock used to simulate latency.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLatency delays every operation by d.
func WithLatency(d time.Duration) Option {
	return func(o *options) {
		o.latency = d
	}
}

// WithFault installs a fault injector.
func WithFault(fault Fault) Option {
	return func(o *options) {
		o.fault = fault
	}
}

// Repository stores entities in memory. It is safe for concurrent use.
type Repository[T any, ID comparable] struct {
	idOf  func(T) ID
	opts  options
	watch *watch.Broadcaster[T]

	mu    sync.RWMutex
	items map[ID]T
	order []ID
}

// New creates an empty repository. idOf extracts the identity of an entity.
func New[T any, ID comparable](idOf func(T) ID, opts ...Option) *Repository[T, ID] {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[T, ID]{
		idOf:  idOf,
		opts:  o,
		watch: watch.New[T](),
		items: make(map[ID]T),
	}
}

// Seed stores entities without latency, faults or conflict checks.
// Existing entities with the same id are replaced.
func (r *Repository[T, ID]) Seed(entities ...T) {
	r.mu.Lock()
	for _, e := range entities {
		r.put(e)
	}
	// publish before unlocking so subscribers see writes in commit order
	r.watch.Publish(r.snapshot())
	r.mu.Unlock()
}

// Close ends all WatchAll streams.
func (r *Repository[T, ID]) Close() error {
	r.watch.Close()
	return nil
}

func (r *Repository[T, ID]) GetByID(ctx context.Context, id ID) outcome.Outcome[T] {
	if f := r.begin(ctx, "GetByID"); f != nil {
		return outcome.Err[T](f)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entity, ok := r.items[id]
	if !ok {
		return outcome.Err[T](notFound(id))
	}
	return outcome.Ok(entity)
}

func (r *Repository[T, ID]) GetAll(ctx context.Context, query repository.Query[T]) outcome.Outcome[repository.PaginatedList[T]] {
	if f := r.begin(ctx, "GetAll"); f != nil {
		return outcome.Err[repository.PaginatedList[T]](f)
	}

	r.mu.RLock()
	all := r.snapshot()
	r.mu.RUnlock()

	return outcome.FromResult(repository.Paginate(all, query))
}

func (r *Repository[T, ID]) Create(ctx context.Context, entity T) outcome.Outcome[T] {
	if f := r.begin(ctx, "Create"); f != nil {
		return outcome.Err[T](f)
	}

	r.mu.Lock()
	id := r.idOf(entity)
	if _, exists := r.items[id]; exists {
		r.mu.Unlock()
		return outcome.Err[T](conflict(id))
	}
	r.put(entity)
	r.watch.Publish(r.snapshot())
	r.mu.Unlock()
	return outcome.Ok(entity)
}

func (r *Repository[T, ID]) Update(ctx context.Context, entity T) outcome.Outcome[T] {
	if f := r.begin(ctx, "Update"); f != nil {
		return outcome.Err[T](f)
	}

	r.mu.Lock()
	id := r.idOf(entity)
	if _, exists := r.items[id]; !exists {
		r.mu.Unlock()
		return outcome.Err[T](notFound(id))
	}
	r.items[id] = entity
	r.watch.Publish(r.snapshot())
	r.mu.Unlock()
	return outcome.Ok(entity)
}

func (r *Repository[T, ID]) Delete(ctx context.Context, id ID) outcome.Outcome[outcome.Unit] {
	if f := r.begin(ctx, "Delete"); f != nil {
		return outcome.Err[outcome.Unit](f)
	}

	r.mu.Lock()
	if _, exists := r.items[id]; !exists {
		r.mu.Unlock()
		return outcome.Err[outcome.Unit](notFound(id))
	}
	r.remove(id)
	r.watch.Publish(r.snapshot())
	r.mu.Unlock()
	return outcome.Done()
}

// CreateMany stores all entities or none. A duplicate id, in the store or
// within the batch, fails the whole batch with Conflict.
func (r *Repository[T, ID]) CreateMany(ctx context.Context, entities []T) outcome.Outcome[[]T] {
	if f := r.begin(ctx, "CreateMany"); f != nil {
		return outcome.Err[[]T](f)
	}

	r.mu.Lock()
	seen := make(map[ID]struct{}, len(entities))
	for _, e := range entities {
		id := r.idOf(e)
		_, inStore := r.items[id]
		_, inBatch := seen[id]
		if inStore || inBatch {
			r.mu.Unlock()
			return outcome.Err[[]T](conflict(id))
		}
		seen[id] = struct{}{}
	}
	for _, e := range entities {
		r.put(e)
	}
	r.watch.Publish(r.snapshot())
	r.mu.Unlock()
	return outcome.Ok(entities)
}

// DeleteMany removes the given ids. Unknown ids are ignored.
func (r *Repository[T, ID]) DeleteMany(ctx context.Context, ids []ID) outcome.Outcome[outcome.Unit] {
	if f := r.begin(ctx, "DeleteMany"); f != nil {
		return outcome.Err[outcome.Unit](f)
	}

	r.mu.Lock()
	for _, id := range ids {
		r.remove(id)
	}
	r.watch.Publish(r.snapshot())
	r.mu.Unlock()
	return outcome.Done()
}

// WatchAll yields the current contents and then a snapshot after every
// change, until ctx is done.
func (r *Repository[T, ID]) WatchAll(ctx context.Context) <-chan []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.watch.Subscribe(ctx, r.snapshot())
}

func (r *Repository[T, ID]) Exists(ctx context.Context, id ID) outcome.Outcome[bool] {
	if f := r.begin(ctx, "Exists"); f != nil {
		return outcome.Err[bool](f)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[id]
	return outcome.Ok(ok)
}

func (r *Repository[T, ID]) Count(ctx context.Context, filter *repository.Filter[T]) outcome.Outcome[int] {
	if f := r.begin(ctx, "Count"); f != nil {
		return outcome.Err[int](f)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.order {
		if filter.Matches(r.items[id]) {
			n++
		}
	}
	return outcome.Ok(n)
}

func (r *Repository[T, ID]) FindFirst(ctx context.Context, filter repository.Filter[T]) outcome.Outcome[T] {
	if f := r.begin(ctx, "FindFirst"); f != nil {
		return outcome.Err[T](f)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if entity := r.items[id]; filter.Matches(entity) {
			return outcome.Ok(entity)
		}
	}
	return outcome.Err[T](failure.NotFound("no entity matches filter"))
}

// begin simulates latency and faults for op.
func (r *Repository[T, ID]) begin(ctx context.Context, op string) *failure.Failure {
	if r.opts.latency > 0 {
		select {
		case <-ctx.Done():
		case <-r.opts.clock.After(r.opts.latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return failure.MapError(err, map[string]any{"operation": op})
	}
	if r.opts.fault != nil {
		if err := r.opts.fault(ctx, op); err != nil {
			return failure.MapError(err, map[string]any{"operation": op})
		}
	}
	return nil
}

func (r *Repository[T, ID]) put(entity T) {
	id := r.idOf(entity)
	if _, exists := r.items[id]; !exists {
		r.order = append(r.order, id)
	}
	r.items[id] = entity
}

func (r *Repository[T, ID]) remove(id ID) {
	if _, exists := r.items[id]; !exists {
		return
	}
	delete(r.items, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Repository[T, ID]) snapshot() []T {
	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out
}

func notFound[ID any](id ID) *failure.Failure {
	return failure.NotFound(fmt.Sprintf("entity %v not found", id),
		failure.WithContext(map[string]any{"id": id}))
}

func conflict[ID any](id ID) *failure.Failure {
	return failure.Conflict(fmt.Sprintf("entity %v already exists", id),
		failure.WithContext(map[string]any{"id": id}))
}
