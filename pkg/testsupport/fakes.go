package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-repository-tiered/cache"
	"github.com/goliatone/go-repository-tiered/failure"
	"github.com/goliatone/go-repository-tiered/outcome"
	"github.com/goliatone/go-repository-tiered/repository"
)

// CallLog records calls made on one or more fakes, in order. Sharing a log
// between fakes lets tests assert the order of calls across tiers.
type CallLog struct {
	mu      sync.Mutex
	entries []string
}

// NewCallLog returns an empty log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

// Record appends entry to the log.
func (l *CallLog) Record(entry string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (l *CallLog) Entries() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type counter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *counter) inc(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[method]++
}

func (c *counter) get(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *counter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// FakeRepository is a recording repository.Repository. Each method delegates
// to the matching function field when set; otherwise GetByID and FindFirst
// fail with NotFound, writes echo their input and reads return empty values.
type FakeRepository[T any, ID comparable] struct {
	// Name prefixes entries written to Log, e.g. "remote.GetByID".
	Name string
	Log  *CallLog

	GetByIDFn    func(ctx context.Context, id ID) outcome.Outcome[T]
	GetAllFn     func(ctx context.Context, query repository.Query[T]) outcome.Outcome[repository.PaginatedList[T]]
	CreateFn     func(ctx context.Context, entity T) outcome.Outcome[T]
	UpdateFn     func(ctx context.Context, entity T) outcome.Outcome[T]
	DeleteFn     func(ctx context.Context, id ID) outcome.Outcome[outcome.Unit]
	CreateManyFn func(ctx context.Context, entities []T) outcome.Outcome[[]T]
	DeleteManyFn func(ctx context.Context, ids []ID) outcome.Outcome[outcome.Unit]
	WatchAllFn   func(ctx context.Context) <-chan []T
	ExistsFn     func(ctx context.Context, id ID) outcome.Outcome[bool]
	CountFn      func(ctx context.Context, filter *repository.Filter[T]) outcome.Outcome[int]
	FindFirstFn  func(ctx context.Context, filter repository.Filter[T]) outcome.Outcome[T]

	counter counter
}

var _ repository.Repository[any, string] = (*FakeRepository[any, string])(nil)

// NewFakeRepository returns a fake that records into log under name.
func NewFakeRepository[T any, ID comparable](name string, log *CallLog) *FakeRepository[T, ID] {
	return &FakeRepository[T, ID]{Name: name, Log: log}
}

// Calls returns how many times method was called.
func (f *FakeRepository[T, ID]) Calls(method string) int {
	return f.counter.get(method)
}

// TotalCalls returns the number of calls across all methods.
func (f *FakeRepository[T, ID]) TotalCalls() int {
	return f.counter.total()
}

func (f *FakeRepository[T, ID]) record(method string) {
	f.counter.inc(method)
	f.Log.Record(f.Name + "." + method)
}

func (f *FakeRepository[T, ID]) GetByID(ctx context.Context, id ID) outcome.Outcome[T] {
	f.record("GetByID")
	if f.GetByIDFn != nil {
		return f.GetByIDFn(ctx, id)
	}
	return outcome.Err[T](failure.NotFound(fmt.Sprintf("%v not found", id)))
}

func (f *FakeRepository[T, ID]) GetAll(ctx context.Context, query repository.Query[T]) outcome.Outcome[repository.PaginatedList[T]] {
	f.record("GetAll")
	if f.GetAllFn != nil {
		return f.GetAllFn(ctx, query)
	}
	return outcome.FromResult(repository.Paginate[T](nil, query))
}

func (f *FakeRepository[T, ID]) Create(ctx context.Context, entity T) outcome.Outcome[T] {
	f.record("Create")
	if f.CreateFn != nil {
		return f.CreateFn(ctx, entity)
	}
	return outcome.Ok(entity)
}

func (f *FakeRepository[T, ID]) Update(ctx context.Context, entity T) outcome.Outcome[T] {
	f.record("Update")
	if f.UpdateFn != nil {
		return f.UpdateFn(ctx, entity)
	}
	return outcome.Ok(entity)
}

func (f *FakeRepository[T, ID]) Delete(ctx context.Context, id ID) outcome.Outcome[outcome.Unit] {
	f.record("Delete")
	if f.DeleteFn != nil {
		return f.DeleteFn(ctx, id)
	}
	return outcome.Done()
}

func (f *FakeRepository[T, ID]) CreateMany(ctx context.Context, entities []T) outcome.Outcome[[]T] {
	f.record("CreateMany")
	if f.CreateManyFn != nil {
		return f.CreateManyFn(ctx, entities)
	}
	return outcome.Ok(entities)
}

func (f *FakeRepository[T, ID]) DeleteMany(ctx context.Context, ids []ID) outcome.Outcome[outcome.Unit] {
	f.record("DeleteMany")
	if f.DeleteManyFn != nil {
		return f.DeleteManyFn(ctx, ids)
	}
	return outcome.Done()
}

func (f *FakeRepository[T, ID]) WatchAll(ctx context.Context) <-chan []T {
	f.record("WatchAll")
	if f.WatchAllFn != nil {
		return f.WatchAllFn(ctx)
	}
	ch := make(chan []T)
	close(ch)
	return ch
}

func (f *FakeRepository[T, ID]) Exists(ctx context.Context, id ID) outcome.Outcome[bool] {
	f.record("Exists")
	if f.ExistsFn != nil {
		return f.ExistsFn(ctx, id)
	}
	return outcome.Ok(false)
}

func (f *FakeRepository[T, ID]) Count(ctx context.Context, filter *repository.Filter[T]) outcome.Outcome[int] {
	f.record("Count")
	if f.CountFn != nil {
		return f.CountFn(ctx, filter)
	}
	return outcome.Ok(0)
}

func (f *FakeRepository[T, ID]) FindFirst(ctx context.Context, filter repository.Filter[T]) outcome.Outcome[T] {
	f.record("FindFirst")
	if f.FindFirstFn != nil {
		return f.FindFirstFn(ctx, filter)
	}
	return outcome.Err[T](failure.NotFound("no entity matches filter"))
}

// FakeCache is a recording cache.DataSource backed by a plain map. It does
// not expire entries; the TTL passed to Set is kept for inspection.
type FakeCache[T any] struct {
	Name string
	Log  *CallLog

	// SetErr and InvalidateErr are returned by the matching methods when set.
	SetErr        error
	InvalidateErr error

	mu      sync.Mutex
	values  map[string]T
	ttls    map[string]time.Duration
	counter counter
}

var _ cache.DataSource[any] = (*FakeCache[any])(nil)

// NewFakeCache returns an empty fake cache.
func NewFakeCache[T any](name string, log *CallLog) *FakeCache[T] {
	return &FakeCache[T]{
		Name:   name,
		Log:    log,
		values: make(map[string]T),
		ttls:   make(map[string]time.Duration),
	}
}

// Seed stores value under key without recording a call.
func (c *FakeCache[T]) Seed(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Calls returns how many times method was called.
func (c *FakeCache[T]) Calls(method string) int {
	return c.counter.get(method)
}

// TTL returns the ttl of the last Set for key.
func (c *FakeCache[T]) TTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ttl, ok := c.ttls[key]
	return ttl, ok
}

// Peek reads key without recording a call.
func (c *FakeCache[T]) Peek(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *FakeCache[T]) record(method string) {
	c.counter.inc(method)
	c.Log.Record(c.Name + "." + method)
}

func (c *FakeCache[T]) Get(_ context.Context, key string) (T, bool) {
	c.record("Get")
	return c.Peek(key)
}

func (c *FakeCache[T]) Set(_ context.Context, key string, value T, ttl time.Duration) error {
	c.record("Set")
	if c.SetErr != nil {
		return c.SetErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *FakeCache[T]) Has(_ context.Context, key string) bool {
	c.record("Has")
	_, ok := c.Peek(key)
	return ok
}

func (c *FakeCache[T]) Invalidate(_ context.Context, key string) error {
	c.record("Invalidate")
	if c.InvalidateErr != nil {
		return c.InvalidateErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.ttls, key)
	return nil
}

func (c *FakeCache[T]) InvalidateAll(_ context.Context) error {
	c.record("InvalidateAll")
	if c.InvalidateErr != nil {
		return c.InvalidateErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.values)
	clear(c.ttls)
	return nil
}
