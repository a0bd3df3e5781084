package cacheinfra

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/jonboulle/clockwork"
)

// Backend selects the store implementation.
type Backend string

const (
	BackendTTL     Backend = "ttl"
	BackendLRU     Backend = "lru"
	BackendSturdyc Backend = "sturdyc"
)

// Config holds the settings shared by every store backend.
type Config struct {
	// Backend picks the store. Empty means BackendTTL.
	Backend Backend `json:"backend"`

	// Capacity bounds the number of entries for the lru and sturdyc
	// backends. The ttl backend is unbounded and ignores it.
	Capacity int `json:"capacity"`

	// NumShards is passed to sturdyc. Default: 256
	NumShards int `json:"num_shards"`

	// TTL is the default lifetime the orchestrator gives to cached values.
	// For the sturdyc backend it is also the hard upper bound of any entry.
	TTL time.Duration `json:"ttl"`

	// EvictionPercentage is the share of sturdyc entries evicted when a
	// shard is full. Must be between 1-100.
	EvictionPercentage int `json:"eviction_percentage"`

	// SweepInterval is how often expired entries are purged in the
	// background. Zero disables the ttl sweeper and keeps the sturdyc default.
	SweepInterval time.Duration `json:"sweep_interval"`
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendTTL,
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		SweepInterval:      time.Minute,
	}
}

// Validate checks the fields the selected backend depends on.
func (c Config) Validate() error {
	bounded := c.Backend == BackendLRU || c.Backend == BackendSturdyc
	sturdy := c.Backend == BackendSturdyc

	err := validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.In(BackendTTL, BackendLRU, BackendSturdyc)),
		validation.Field(&c.Capacity, validation.When(bounded, validation.Required, validation.Min(1))),
		validation.Field(&c.NumShards, validation.When(sturdy, validation.Required, validation.Min(1))),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Duration(0))),
		validation.Field(&c.EvictionPercentage, validation.When(sturdy, validation.Required, validation.Min(1), validation.Max(100))),
		validation.Field(&c.SweepInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid cache configuration")
	}
	return nil
}

// Option customizes store construction.
type Option func(*options)

type options struct {
	clock         clockwork.Clock
	sweepInterval time.Duration
}

func newOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithClock sets the time source used for expiry and sweeping.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithSweepInterval starts a background sweeper purging expired entries
// at the given interval. Zero or negative disables it.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *options) {
		o.sweepInterval = interval
	}
}
