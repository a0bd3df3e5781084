package di

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-repository-tiered/cache"
	"github.com/goliatone/go-repository-tiered/datasource/sqlite"
	"github.com/goliatone/go-repository-tiered/pkg/metrics"
	"github.com/goliatone/go-repository-tiered/repository"
	"github.com/goliatone/go-repository-tiered/repositorycache"
)

// Container wires the shared dependencies of tiered repositories: cache
// configuration, logger, metrics recorder, key serializer and an optional
// SQLite database for local tiers. Stores and databases it opens are
// released by Close.
type Container struct {
	config        cache.Config
	cacheOpts     []cache.Option
	keySerializer cache.KeySerializer
	logger        *slog.Logger
	metrics       metrics.Recorder
	localPath     string

	mu      sync.Mutex
	localDB *sql.DB
	closers []io.Closer
}

// Option customizes a Container.
type Option func(*Container)

// WithLogger sets the logger handed to every repository.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the recorder handed to every repository.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(c *Container) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithPrometheus registers Prometheus counters on reg and uses them as the
// metrics recorder.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(c *Container) {
		c.metrics = metrics.NewPrometheus(reg)
	}
}

// WithLocalDatabase opens a SQLite database at path on first use of
// LocalDB. Use ":memory:" for a throwaway database.
func WithLocalDatabase(path string) Option {
	return func(c *Container) {
		c.localPath = path
	}
}

// WithCacheOptions passes store options, such as a fake clock, to every
// cache store the container creates.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(c *Container) {
		c.cacheOpts = append(c.cacheOpts, opts...)
	}
}

// NewContainer creates a container using config for every cache store.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config:        config,
		keySerializer: cache.NewDefaultKeySerializer(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:       metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewContainerWithDefaults creates a container with cache.DefaultConfig.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// LoadContainer reads the cache configuration from a YAML file.
func LoadContainer(path string, opts ...Option) (*Container, error) {
	config, err := cache.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewContainer(config, opts...)
}

// KeySerializer returns the shared key serializer.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns the cache configuration.
func (c *Container) Config() cache.Config {
	return c.config
}

func (c *Container) Logger() *slog.Logger {
	return c.logger
}

func (c *Container) Metrics() metrics.Recorder {
	return c.metrics
}

// LocalDB returns the local SQLite database, opening it on first use.
func (c *Container) LocalDB() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.localDB != nil {
		return c.localDB, nil
	}
	if c.localPath == "" {
		return nil, errors.New("di: no local database configured")
	}

	db, err := sqlite.Open(c.localPath)
	if err != nil {
		return nil, err
	}
	c.localDB = db
	c.closers = append(c.closers, db)
	return db, nil
}

// Close releases every store and database opened by the container, most
// recent first.
func (c *Container) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.localDB = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Container) track(closer io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, closer)
}

// NewCacheStore creates a cache store from the container configuration.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCacheStore[User](container)
func NewCacheStore[T any](c *Container) (cache.Store[T], error) {
	store, err := cache.NewDataSource[T](c.config, c.cacheOpts...)
	if err != nil {
		return nil, err
	}
	c.track(store)
	return store, nil
}

// NewSQLiteLocal creates a SQLite backed local tier storing entities under
// namespace in the container's local database.
func NewSQLiteLocal[T any, ID comparable](c *Container, namespace string, idOf func(T) ID) (*sqlite.Repository[T, ID], error) {
	db, err := c.LocalDB()
	if err != nil {
		return nil, err
	}
	local := sqlite.New[T, ID](db, namespace, idOf, sqlite.WithLogger[ID](c.logger))
	c.track(local)
	return local, nil
}

// TieredOptions selects the tiers of a repository built by NewTieredRepository.
type TieredOptions[T any, ID comparable] struct {
	Remote repository.Repository[T, ID]
	Local  repository.Repository[T, ID]
	// Namespace prefixes cache keys and labels logs and metrics.
	Namespace string
	IDOf      func(T) ID
	// NoCache disables the cache tier.
	NoCache             bool
	CoalesceRemoteReads bool
}

// NewTieredRepository wires a tiered repository with a fresh cache store,
// namespaced cache keys and the container's logger and metrics.
func NewTieredRepository[T any, ID comparable](c *Container, opts TieredOptions[T, ID]) (*repositorycache.TieredRepository[T, ID], error) {
	cfg := repositorycache.Config[T, ID]{
		Remote:              opts.Remote,
		Local:               opts.Local,
		CacheTTL:            c.config.TTL,
		IDOf:                opts.IDOf,
		Namespace:           opts.Namespace,
		Logger:              c.logger,
		Metrics:             c.metrics,
		CoalesceRemoteReads: opts.CoalesceRemoteReads,
	}
	if opts.Namespace != "" {
		cfg.KeyBuilder = cache.NamespacedKeys[ID](opts.Namespace, c.keySerializer)
	}

	if !opts.NoCache {
		store, err := NewCacheStore[T](c)
		if err != nil {
			return nil, err
		}
		cfg.Cache = store
	}

	return repositorycache.New(cfg)
}
