// Package bunrepo adapts a go-repository-bun repository to
// repository.Repository so a bun backed table can serve as the local or
// remote tier of a tiered repository.
//
// Filter conditions and sorts are translated to bun query criteria. Filters
// carrying a Predicate cannot be expressed in SQL; they are evaluated in
// process over the full table.
package bunrepo

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"

	bunrepository "github.com/goliatone/go-repository-bun"
	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-tiered/datasource/internal/watch"
	"github.com/goliatone/go-repository-tiered/failure"
	"github.com/goliatone/go-repository-tiered/outcome"
	"github.com/goliatone/go-repository-tiered/repository"
)

// DefaultPollInterval is how often WatchAll reloads the table.
const DefaultPollInterval = 5 * time.Second

var _ repository.Repository[any, string] = (*Repository[any])(nil)

type options struct {
	idColumn     string
	pollInterval time.Duration
	clock        clockwork.Clock
	logger       *slog.Logger
}

// Option configures a Repository.
type Option func(*options)

// WithIDColumn sets the primary key column used by DeleteMany and Exists.
// Defaults to "id".
func WithIDColumn(column string) Option {
	return func(o *options) {
		if column != "" {
			o.idColumn = column
		}
	}
}

// WithPollInterval sets how often WatchAll reloads the table.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithClock sets the clock driving the WatchAll poller.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger used for poll failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Repository exposes a go-repository-bun repository as a
// repository.Repository keyed by string ids.
type Repository[T any] struct {
	base bunrepository.Repository[T]
	idOf func(T) string
	opts options

	watch    *watch.Broadcaster[T]
	pollOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	last []T

	refreshMu sync.Mutex
}

// New wraps base. idOf returns the primary key of a record.
func New[T any](base bunrepository.Repository[T], idOf func(T) string, opts ...Option) *Repository[T] {
	o := options{
		idColumn:     "id",
		pollInterval: DefaultPollInterval,
		clock:        clockwork.NewRealClock(),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[T]{
		base:  base,
		idOf:  idOf,
		opts:  o,
		watch: watch.New[T](),
		stop:  make(chan struct{}),
	}
}

// Close stops the WatchAll poller and closes every stream.
func (r *Repository[T]) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	r.watch.Close()
	return nil
}

func (r *Repository[T]) GetByID(ctx context.Context, id string) outcome.Outcome[T] {
	record, err := r.base.GetByID(ctx, id)
	return result(record, err, "GetByID", map[string]any{"id": id})
}

func (r *Repository[T]) GetAll(ctx context.Context, query repository.Query[T]) outcome.Outcome[repository.PaginatedList[T]] {
	query = query.Normalized()
	if err := query.Validate(); err != nil {
		return outcome.Err[repository.PaginatedList[T]](failure.MapError(err, nil))
	}

	if (query.Filter != nil && query.Filter.Predicate != nil) || (query.Sort != nil && query.Sort.Less != nil) {
		all, _, err := r.base.List(ctx)
		if err != nil {
			return outcome.Err[repository.PaginatedList[T]](mapErr(err, "GetAll", nil))
		}
		return outcome.FromResult(repository.Paginate(all, query))
	}

	criteria := append(whereCriteria(query.Filter), sortCriteria(query.Sort)...)
	criteria = append(criteria, pageCriteria(query.PageSize, query.Offset()))

	records, total, err := r.base.List(ctx, criteria...)
	if err != nil {
		return outcome.Err[repository.PaginatedList[T]](mapErr(err, "GetAll", nil))
	}
	return outcome.FromResult(repository.NewPaginatedList(records, query.Page, query.PageSize, total))
}

func (r *Repository[T]) Create(ctx context.Context, entity T) outcome.Outcome[T] {
	record, err := r.base.Create(ctx, entity)
	if err == nil {
		r.poke()
	}
	return result(record, err, "Create", nil)
}

func (r *Repository[T]) Update(ctx context.Context, entity T) outcome.Outcome[T] {
	record, err := r.base.Update(ctx, entity)
	if err == nil {
		r.poke()
	}
	return result(record, err, "Update", map[string]any{"id": r.idOf(entity)})
}

// Delete loads the record for id and deletes it.
func (r *Repository[T]) Delete(ctx context.Context, id string) outcome.Outcome[outcome.Unit] {
	record, err := r.base.GetByID(ctx, id)
	if err != nil {
		return outcome.Err[outcome.Unit](mapErr(err, "Delete", map[string]any{"id": id}))
	}
	if err := r.base.Delete(ctx, record); err != nil {
		return outcome.Err[outcome.Unit](mapErr(err, "Delete", map[string]any{"id": id}))
	}
	r.poke()
	return outcome.Done()
}

func (r *Repository[T]) CreateMany(ctx context.Context, entities []T) outcome.Outcome[[]T] {
	records, err := r.base.CreateMany(ctx, entities)
	if err == nil {
		r.poke()
	}
	return result(records, err, "CreateMany", map[string]any{"count": len(entities)})
}

func (r *Repository[T]) DeleteMany(ctx context.Context, ids []string) outcome.Outcome[outcome.Unit] {
	if len(ids) == 0 {
		return outcome.Done()
	}
	column := r.opts.idColumn
	err := r.base.DeleteMany(ctx, func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("? IN (?)", bun.Ident(column), bun.In(ids))
	})
	if err != nil {
		return outcome.Err[outcome.Unit](mapErr(err, "DeleteMany", map[string]any{"count": len(ids)}))
	}
	r.poke()
	return outcome.Done()
}

// WatchAll yields the table contents and then a new snapshot whenever a
// poll observes a change, until ctx is done or the repository is closed.
func (r *Repository[T]) WatchAll(ctx context.Context) <-chan []T {
	r.pollOnce.Do(func() { go r.pollLoop() })

	initial, err := r.load(ctx)
	if err != nil {
		r.opts.logger.WarnContext(ctx, "watch initial load failed", mapErr(err, "WatchAll", nil).LogAttrs()...)
		initial = r.lastSnapshot()
	}
	return r.watch.Subscribe(ctx, initial)
}

func (r *Repository[T]) Exists(ctx context.Context, id string) outcome.Outcome[bool] {
	column := r.opts.idColumn
	n, err := r.base.Count(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("? = ?", bun.Ident(column), id)
	})
	if err != nil {
		return outcome.Err[bool](mapErr(err, "Exists", map[string]any{"id": id}))
	}
	return outcome.Ok(n > 0)
}

func (r *Repository[T]) Count(ctx context.Context, filter *repository.Filter[T]) outcome.Outcome[int] {
	if filter != nil && filter.Predicate != nil {
		all, _, err := r.base.List(ctx)
		if err != nil {
			return outcome.Err[int](mapErr(err, "Count", nil))
		}
		return outcome.Ok(len(filter.Apply(all)))
	}

	n, err := r.base.Count(ctx, whereCriteria(filter)...)
	return result(n, err, "Count", nil)
}

func (r *Repository[T]) FindFirst(ctx context.Context, filter repository.Filter[T]) outcome.Outcome[T] {
	if filter.Predicate != nil {
		all, _, err := r.base.List(ctx)
		if err != nil {
			return outcome.Err[T](mapErr(err, "FindFirst", nil))
		}
		for _, record := range all {
			if filter.Matches(record) {
				return outcome.Ok(record)
			}
		}
		return outcome.Err[T](failure.NotFound("no record matches filter"))
	}

	criteria := append(whereCriteria(&filter), pageCriteria(1, 0))
	records, _, err := r.base.List(ctx, criteria...)
	if err != nil {
		return outcome.Err[T](mapErr(err, "FindFirst", nil))
	}
	if len(records) == 0 {
		return outcome.Err[T](failure.NotFound("no record matches filter"))
	}
	return outcome.Ok(records[0])
}

func (r *Repository[T]) pollLoop() {
	ticker := r.opts.clock.NewTicker(r.opts.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.Chan():
			if r.watch.Len() == 0 {
				continue
			}
			r.refresh(context.Background())
		}
	}
}

// refresh reloads the table and publishes it when it changed.
func (r *Repository[T]) refresh(ctx context.Context) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	prev := r.lastSnapshot()
	snapshot, err := r.load(ctx)
	if err != nil {
		r.opts.logger.WarnContext(ctx, "watch poll failed", mapErr(err, "WatchAll", nil).LogAttrs()...)
		return
	}
	if reflect.DeepEqual(prev, snapshot) {
		return
	}
	r.watch.Publish(snapshot)
}

// poke publishes a fresh snapshot after a local write when someone is
// watching.
func (r *Repository[T]) poke() {
	if r.watch.Len() == 0 {
		return
	}
	r.refresh(context.Background())
}

func (r *Repository[T]) load(ctx context.Context) ([]T, error) {
	records, _, err := r.base.List(ctx)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []T{}
	}

	r.mu.Lock()
	r.last = records
	r.mu.Unlock()
	return records, nil
}

func (r *Repository[T]) lastSnapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func result[V any](value V, err error, op string, ctx map[string]any) outcome.Outcome[V] {
	if err != nil {
		return outcome.Err[V](mapErr(err, op, ctx))
	}
	return outcome.Ok(value)
}

func mapErr(err error, op string, ctx map[string]any) *failure.Failure {
	meta := map[string]any{"operation": op}
	for k, v := range ctx {
		meta[k] = v
	}
	return failure.MapError(err, meta)
}
