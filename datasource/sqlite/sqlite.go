// Package sqlite provides a persistent repository.Repository on SQLite.
//
// Entities are stored as msgpack blobs in a single table shared by every
// entity type, partitioned by namespace. Filters and sorts are evaluated in
// process, which suits the local tier of a tiered repository where the data
// set is a cached subset of the remote one.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jonboulle/clockwork"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/goliatone/go-repository-tiered/cache"
	"github.com/goliatone/go-repository-tiered/datasource/internal/watch"
	"github.com/goliatone/go-repository-tiered/failure"
	"github.com/goliatone/go-repository-tiered/outcome"
	"github.com/goliatone/go-repository-tiered/repository"
)

const schema = `CREATE TABLE IF NOT EXISTS entities (
	namespace  TEXT    NOT NULL,
	entity_key TEXT    NOT NULL,
	payload    BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, entity_key)
)`

var _ repository.Repository[any, string] = (*Repository[any, string])(nil)

// Open opens the database at path, creating parent directories and the
// entities table. Use ":memory:" for a private in-memory database.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = "local.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create database directory").
				WithMetadata(map[string]any{"path": path})
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "open sqlite")
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create entities table")
	}
	return db, nil
}

type options[ID comparable] struct {
	keyOf  cache.KeyBuilder[ID]
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option configures a Repository.
type Option[ID comparable] func(*options[ID])

// WithKeyFunc sets how ids are rendered as row keys. Defaults to cache.KeyOf.
func WithKeyFunc[ID comparable](keyOf cache.KeyBuilder[ID]) Option[ID] {
	return func(o *options[ID]) {
		if keyOf != nil {
			o.keyOf = keyOf
		}
	}
}

// WithClock sets the clock used for updated_at timestamps.
func WithClock[ID comparable](clock clockwork.Clock) Option[ID] {
	return func(o *options[ID]) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger used for watch refresh failures.
func WithLogger[ID comparable](logger *slog.Logger) Option[ID] {
	return func(o *options[ID]) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Repository stores entities of one namespace. It is safe for concurrent use.
type Repository[T any, ID comparable] struct {
	db        *sql.DB
	namespace string
	idOf      func(T) ID
	opts      options[ID]
	watch     *watch.Broadcaster[T]

	// publishMu keeps load and publish of one snapshot together so
	// concurrent writers cannot publish an older snapshot last.
	publishMu sync.Mutex
}

// New returns a repository storing entities under namespace. The entities
// table must exist; Open creates it.
func New[T any, ID comparable](db *sql.DB, namespace string, idOf func(T) ID, opts ...Option[ID]) *Repository[T, ID] {
	o := options[ID]{
		keyOf:  cache.KeyOf[ID],
		clock:  clockwork.NewRealClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[T, ID]{
		db:        db,
		namespace: namespace,
		idOf:      idOf,
		opts:      o,
		watch:     watch.New[T](),
	}
}

// Close ends all WatchAll streams. The database is owned by the caller.
func (r *Repository[T, ID]) Close() error {
	r.watch.Close()
	return nil
}

func (r *Repository[T, ID]) GetByID(ctx context.Context, id ID) outcome.Outcome[T] {
	key := r.opts.keyOf(id)

	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM entities WHERE namespace = ? AND entity_key = ?`,
		r.namespace, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return outcome.Err[T](r.notFound(key))
	}
	if err != nil {
		return outcome.Err[T](r.mapErr(err, "GetByID", key))
	}

	return r.decode(payload, key)
}

func (r *Repository[T, ID]) GetAll(ctx context.Context, query repository.Query[T]) outcome.Outcome[repository.PaginatedList[T]] {
	all, f := r.loadAll(ctx, "GetAll")
	if f != nil {
		return outcome.Err[repository.PaginatedList[T]](f)
	}
	return outcome.FromResult(repository.Paginate(all, query))
}

func (r *Repository[T, ID]) Create(ctx context.Context, entity T) outcome.Outcome[T] {
	key := r.opts.keyOf(r.idOf(entity))
	payload, err := msgpack.Marshal(entity)
	if err != nil {
		return outcome.Err[T](encodeFailure(err, key))
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entities (namespace, entity_key, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, entity_key) DO NOTHING`,
		r.namespace, key, payload, r.now(),
	)
	if err != nil {
		return outcome.Err[T](r.mapErr(err, "Create", key))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return outcome.Err[T](failure.Conflict(
			fmt.Sprintf("%s %s already exists", r.namespace, key),
			failure.WithContext(map[string]any{"namespace": r.namespace, "key": key}),
		))
	}

	r.publish(ctx)
	return outcome.Ok(entity)
}

func (r *Repository[T, ID]) Update(ctx context.Context, entity T) outcome.Outcome[T] {
	key := r.opts.keyOf(r.idOf(entity))
	payload, err := msgpack.Marshal(entity)
	if err != nil {
		return outcome.Err[T](encodeFailure(err, key))
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE entities SET payload = ?, updated_at = ? WHERE namespace = ? AND entity_key = ?`,
		payload, r.now(), r.namespace, key,
	)
	if err != nil {
		return outcome.Err[T](r.mapErr(err, "Update", key))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return outcome.Err[T](r.notFound(key))
	}

	r.publish(ctx)
	return outcome.Ok(entity)
}

func (r *Repository[T, ID]) Delete(ctx context.Context, id ID) outcome.Outcome[outcome.Unit] {
	key := r.opts.keyOf(id)

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM entities WHERE namespace = ? AND entity_key = ?`,
		r.namespace, key,
	)
	if err != nil {
		return outcome.Err[outcome.Unit](r.mapErr(err, "Delete", key))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return outcome.Err[outcome.Unit](r.notFound(key))
	}

	r.publish(ctx)
	return outcome.Done()
}

// CreateMany inserts all entities in one transaction. Any conflict rolls
// back the whole batch.
func (r *Repository[T, ID]) CreateMany(ctx context.Context, entities []T) outcome.Outcome[[]T] {
	f := r.inTx(ctx, "CreateMany", func(tx *sql.Tx) *failure.Failure {
		now := r.now()
		for _, entity := range entities {
			key := r.opts.keyOf(r.idOf(entity))
			payload, err := msgpack.Marshal(entity)
			if err != nil {
				return encodeFailure(err, key)
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO entities (namespace, entity_key, payload, updated_at) VALUES (?, ?, ?, ?)
				 ON CONFLICT (namespace, entity_key) DO NOTHING`,
				r.namespace, key, payload, now,
			)
			if err != nil {
				return r.mapErr(err, "CreateMany", key)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return failure.Conflict(
					fmt.Sprintf("%s %s already exists", r.namespace, key),
					failure.WithContext(map[string]any{"namespace": r.namespace, "key": key}),
				)
			}
		}
		return nil
	})
	if f != nil {
		return outcome.Err[[]T](f)
	}

	r.publish(ctx)
	return outcome.Ok(entities)
}

// DeleteMany deletes the given ids in one transaction. Unknown ids are ignored.
func (r *Repository[T, ID]) DeleteMany(ctx context.Context, ids []ID) outcome.Outcome[outcome.Unit] {
	f := r.inTx(ctx, "DeleteMany", func(tx *sql.Tx) *failure.Failure {
		for _, id := range ids {
			key := r.opts.keyOf(id)
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM entities WHERE namespace = ? AND entity_key = ?`,
				r.namespace, key,
			); err != nil {
				return r.mapErr(err, "DeleteMany", key)
			}
		}
		return nil
	})
	if f != nil {
		return outcome.Err[outcome.Unit](f)
	}

	r.publish(ctx)
	return outcome.Done()
}

// WatchAll yields the namespace contents and a new snapshot after every
// write made through this repository.
func (r *Repository[T, ID]) WatchAll(ctx context.Context) <-chan []T {
	all, f := r.loadAll(ctx, "WatchAll")
	if f != nil {
		r.opts.logger.WarnContext(ctx, "watch initial load failed", f.LogAttrs()...)
	}
	return r.watch.Subscribe(ctx, all)
}

func (r *Repository[T, ID]) Exists(ctx context.Context, id ID) outcome.Outcome[bool] {
	key := r.opts.keyOf(id)

	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entities WHERE namespace = ? AND entity_key = ?`,
		r.namespace, key,
	).Scan(&n)
	if err != nil {
		return outcome.Err[bool](r.mapErr(err, "Exists", key))
	}
	return outcome.Ok(n > 0)
}

func (r *Repository[T, ID]) Count(ctx context.Context, filter *repository.Filter[T]) outcome.Outcome[int] {
	if filter == nil {
		var n int
		err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM entities WHERE namespace = ?`, r.namespace,
		).Scan(&n)
		if err != nil {
			return outcome.Err[int](r.mapErr(err, "Count", ""))
		}
		return outcome.Ok(n)
	}

	all, f := r.loadAll(ctx, "Count")
	if f != nil {
		return outcome.Err[int](f)
	}
	return outcome.Ok(len(filter.Apply(all)))
}

func (r *Repository[T, ID]) FindFirst(ctx context.Context, filter repository.Filter[T]) outcome.Outcome[T] {
	all, f := r.loadAll(ctx, "FindFirst")
	if f != nil {
		return outcome.Err[T](f)
	}
	for _, entity := range all {
		if filter.Matches(entity) {
			return outcome.Ok(entity)
		}
	}
	return outcome.Err[T](failure.NotFound(
		fmt.Sprintf("no %s matches filter", r.namespace),
		failure.WithContext(map[string]any{"namespace": r.namespace}),
	))
}

// loadAll decodes every entity of the namespace in insertion order.
func (r *Repository[T, ID]) loadAll(ctx context.Context, op string) ([]T, *failure.Failure) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entity_key, payload FROM entities WHERE namespace = ? ORDER BY rowid`,
		r.namespace,
	)
	if err != nil {
		return nil, r.mapErr(err, op, "")
	}
	defer func() { _ = rows.Close() }()

	out := []T{}
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, r.mapErr(err, op, key)
		}
		var entity T
		if err := msgpack.Unmarshal(payload, &entity); err != nil {
			return nil, decodeFailure(err, key)
		}
		out = append(out, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapErr(err, op, "")
	}
	return out, nil
}

func (r *Repository[T, ID]) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) *failure.Failure) (f *failure.Failure) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return r.mapErr(err, op, "")
	}
	defer func() {
		if f != nil {
			_ = tx.Rollback()
		}
	}()

	if f = fn(tx); f != nil {
		return f
	}
	if err := tx.Commit(); err != nil {
		return r.mapErr(err, op, "")
	}
	return nil
}

func (r *Repository[T, ID]) publish(ctx context.Context) {
	if r.watch.Len() == 0 {
		return
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	all, f := r.loadAll(ctx, "WatchAll")
	if f != nil {
		r.opts.logger.WarnContext(ctx, "watch refresh failed", f.LogAttrs()...)
		return
	}
	r.watch.Publish(all)
}

func (r *Repository[T, ID]) decode(payload []byte, key string) outcome.Outcome[T] {
	var entity T
	if err := msgpack.Unmarshal(payload, &entity); err != nil {
		return outcome.Err[T](decodeFailure(err, key))
	}
	return outcome.Ok(entity)
}

func (r *Repository[T, ID]) now() int64 {
	return r.opts.clock.Now().UnixMilli()
}

func (r *Repository[T, ID]) notFound(key string) *failure.Failure {
	return failure.NotFound(
		fmt.Sprintf("%s %s not found", r.namespace, key),
		failure.WithContext(map[string]any{"namespace": r.namespace, "key": key}),
	)
}

func (r *Repository[T, ID]) mapErr(err error, op, key string) *failure.Failure {
	meta := map[string]any{"namespace": r.namespace, "operation": op}
	if key != "" {
		meta["key"] = key
	}
	return failure.MapError(err, meta)
}

func encodeFailure(err error, key string) *failure.Failure {
	return failure.Validation("entity cannot be encoded", nil,
		failure.WithCause(err),
		failure.WithContext(map[string]any{"key": key}),
	)
}

func decodeFailure(err error, key string) *failure.Failure {
	return failure.Server("stored entity cannot be decoded",
		failure.WithCode(failure.CodeParseError),
		failure.WithCause(err),
		failure.WithContext(map[string]any{"key": key}),
	)
}
