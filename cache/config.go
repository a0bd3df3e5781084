package cache

import (
	"os"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-repository-tiered/internal/cacheinfra"
)

// Backend names a cache store implementation.
type Backend = cacheinfra.Backend

const (
	BackendTTL     = cacheinfra.BackendTTL
	BackendLRU     = cacheinfra.BackendLRU
	BackendSturdyc = cacheinfra.BackendSturdyc
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend            Backend       `yaml:"backend"`
	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"num_shards"`
	TTL                time.Duration `yaml:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
// Durations use Go syntax, e.g. "5m" or "30s".
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "cache config: invalid yaml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryNotFound, "cache config: cannot read file").
			WithMetadata(map[string]any{"path": path})
	}
	return ParseConfig(data)
}

func (c Config) toInternal() cacheinfra.Config {
	backend := c.Backend
	if backend == "" {
		backend = cacheinfra.BackendTTL
	}
	return cacheinfra.Config{
		Backend:            backend,
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		SweepInterval:      c.SweepInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Backend:            cfg.Backend,
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		SweepInterval:      cfg.SweepInterval,
	}
}
