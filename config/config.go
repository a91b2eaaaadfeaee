package config

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/futurelot/nscache/cache"
	"github.com/futurelot/nscache/logger"
	"github.com/futurelot/nscache/resilience"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Snapshot backends understood by Snapshots.Backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// DefaultSnapshotDir is used by Defaults for file snapshots.
const DefaultSnapshotDir = "nscache-snapshots"

// Namespace is the file form of cache.NamespaceConfig.
type Namespace struct {
	TTL                  Duration `yaml:"ttl,omitempty"`
	MaxEntries           int      `yaml:"max_entries,omitempty"`
	MaxBytes             ByteSize `yaml:"max_bytes,omitempty"`
	RefreshInterval      Duration `yaml:"refresh_interval,omitempty"`
	StaleWhileRevalidate bool     `yaml:"stale_while_revalidate,omitempty"`
	Compression          bool     `yaml:"compression,omitempty"`
	Priority             string   `yaml:"priority,omitempty"`
	PersistToDisk        bool     `yaml:"persist_to_disk,omitempty"`
	EvictionTarget       float64  `yaml:"eviction_target,omitempty"`
	RefreshWindow        float64  `yaml:"refresh_window,omitempty"`
}

// CacheConfig converts n for cache.CreateNamespace.
func (n Namespace) CacheConfig() cache.NamespaceConfig {
	return cache.NamespaceConfig{
		TTL:                  n.TTL.Duration(),
		MaxEntries:           n.MaxEntries,
		MaxBytes:             int64(n.MaxBytes),
		RefreshInterval:      n.RefreshInterval.Duration(),
		StaleWhileRevalidate: n.StaleWhileRevalidate,
		Compression:          n.Compression,
		DefaultPriority:      cache.Priority(n.Priority),
		PersistToDisk:        n.PersistToDisk,
		EvictionTarget:       n.EvictionTarget,
		RefreshWindow:        n.RefreshWindow,
	}
}

type Redis struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password,omitempty"`
	DB       int      `yaml:"db,omitempty"`
	Prefix   string   `yaml:"prefix,omitempty"`
	Expiry   Duration `yaml:"expiry,omitempty"`
}

// Snapshots selects where namespaces with persist_to_disk are written.
// Several backends form a composite store: every snapshot is written to
// all of them and read from the first that has it.
type Snapshots struct {
	Backends   []string `yaml:"backends,omitempty"`
	Dir        string   `yaml:"dir,omitempty"`
	SQLitePath string   `yaml:"sqlite_path,omitempty"`
	Redis      *Redis   `yaml:"redis,omitempty"`
	Interval   Duration `yaml:"interval,omitempty"`
	Timeout    Duration `yaml:"timeout,omitempty"`
	Breaker    *Breaker `yaml:"breaker,omitempty"`
}

// Breaker puts a circuit breaker in front of every snapshot backend, so a
// backend that keeps failing is skipped until its cooldown passes.
type Breaker struct {
	MaxFailures int      `yaml:"max_failures,omitempty"`
	Cooldown    Duration `yaml:"cooldown,omitempty"`
}

func (b *Breaker) resilienceConfig() resilience.Config {
	cfg := resilience.DefaultConfig()
	if b.MaxFailures > 0 {
		cfg.MaxFailures = b.MaxFailures
	}
	if b.Cooldown > 0 {
		cfg.Cooldown = b.Cooldown.Duration()
	}
	return cfg
}

// Config describes a cache and its namespaces.
type Config struct {
	LogLevel   string               `yaml:"log_level,omitempty"`
	Snapshots  Snapshots            `yaml:"snapshots"`
	Namespaces map[string]Namespace `yaml:"namespaces"`
}

// Defaults returns the built-in namespaces, persisted to DefaultSnapshotDir.
func Defaults() *Config {
	return &Config{
		Snapshots: Snapshots{
			Backends: []string{BackendFile},
			Dir:      DefaultSnapshotDir,
			Interval: Duration(cache.DefaultPersistInterval),
		},
		Namespaces: map[string]Namespace{
			"market-data": {
				TTL:                  Duration(15 * time.Minute),
				MaxEntries:           1000,
				RefreshInterval:      Duration(5 * time.Minute),
				StaleWhileRevalidate: true,
				Compression:          true,
				Priority:             string(cache.PriorityHigh),
				PersistToDisk:        true,
			},
			"neighborhood-stats": {
				TTL:             Duration(time.Hour),
				MaxEntries:      5000,
				MaxBytes:        64 << 20,
				RefreshInterval: Duration(30 * time.Minute),
				Compression:     true,
				Priority:        string(cache.PriorityMedium),
				PersistToDisk:   true,
			},
			"economic-indicators": {
				TTL:             Duration(24 * time.Hour),
				MaxEntries:      500,
				RefreshInterval: Duration(6 * time.Hour),
				Priority:        string(cache.PriorityHigh),
				PersistToDisk:   true,
			},
			"predictions": {
				TTL:                  Duration(30 * time.Minute),
				MaxEntries:           2000,
				StaleWhileRevalidate: true,
				Priority:             string(cache.PriorityLow),
			},
		},
	}
}

// Load reads, interpolates and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}
	expanded, err := InterpolateEnv(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "config file: %s", path)
	}
	cfg, err := Parse([]byte(expanded))
	if err != nil {
		return nil, errors.Wrapf(err, "config file: %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML config. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to decode YAML config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every namespace and the snapshot backends.
func (c *Config) Validate() error {
	var persist bool
	for _, name := range c.NamespaceNames() {
		ns := c.Namespaces[name]
		if err := ns.CacheConfig().Validate(); err != nil {
			return errors.Wrapf(err, "namespace %s", name)
		}
		persist = persist || ns.PersistToDisk
	}
	if persist && len(c.Snapshots.Backends) == 0 {
		return errors.Mark(errors.New("namespaces persist to disk but snapshots.backends is empty"), cache.ErrConfiguration)
	}
	if b := c.Snapshots.Breaker; b != nil && b.MaxFailures < 0 {
		return errors.Mark(errors.Newf("snapshots.breaker.max_failures must not be negative, got %d", b.MaxFailures), cache.ErrConfiguration)
	}
	for _, backend := range c.Snapshots.Backends {
		var err error
		switch backend {
		case BackendFile:
			if c.Snapshots.Dir == "" {
				err = errors.New("snapshots.dir is required for the file backend")
			}
		case BackendRedis:
			if c.Snapshots.Redis == nil || c.Snapshots.Redis.Addr == "" {
				err = errors.New("snapshots.redis.addr is required for the redis backend")
			}
		case BackendSQLite, BackendMemory:
		default:
			err = errors.Newf("unknown snapshot backend '%s'", backend)
		}
		if err != nil {
			return errors.Mark(err, cache.ErrConfiguration)
		}
	}
	return nil
}

// NamespaceNames returns the configured namespaces in sorted order.
func (c *Config) NamespaceNames() []string {
	names := make([]string, 0, len(c.Namespaces))
	for name := range c.Namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Logger returns a console logger at the configured level. An empty
// log_level defers to NSCACHE_LOG_LEVEL.
func (c *Config) Logger() logger.SinkLogger {
	return logger.NewConsoleLogger(logger.ParseLevel(c.LogLevel, logger.GetLevelFromEnv()))
}

// Options returns the cache options for the snapshot settings, opening the
// snapshot store if any backend is configured.
func (c *Config) Options(ctx context.Context) ([]cache.Option, error) {
	var opts []cache.Option
	store, err := c.Store(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, cache.WithSnapshotStore(store))
	}
	if c.Snapshots.Interval > 0 {
		opts = append(opts, cache.WithPersistInterval(c.Snapshots.Interval.Duration()))
	}
	if c.Snapshots.Timeout > 0 {
		opts = append(opts, cache.WithStoreTimeout(c.Snapshots.Timeout.Duration()))
	}
	return opts, nil
}

// Store opens the configured snapshot backends. It returns nil when none
// is configured.
func (c *Config) Store(ctx context.Context) (cache.SnapshotStore, error) {
	var stores []cache.SnapshotStore
	closeAll := func() {
		for _, s := range stores {
			s.Close()
		}
	}
	for _, backend := range c.Snapshots.Backends {
		var (
			store cache.SnapshotStore
			err   error
		)
		switch backend {
		case BackendFile:
			store, err = cache.NewFileStore(c.Snapshots.Dir)
		case BackendSQLite:
			store, err = cache.NewSQLiteStore(ctx, c.Snapshots.SQLitePath)
		case BackendRedis:
			store, err = c.redisStore(ctx)
		case BackendMemory:
			store = cache.NewInMemoryStore()
		default:
			err = errors.Mark(errors.Newf("unknown snapshot backend '%s'", backend), cache.ErrConfiguration)
		}
		if err != nil {
			closeAll()
			return nil, errors.Wrapf(err, "snapshot backend %s", backend)
		}
		if c.Snapshots.Breaker != nil {
			store = cache.NewBreakerStore(store, c.Snapshots.Breaker.resilienceConfig())
		}
		stores = append(stores, store)
	}
	switch len(stores) {
	case 0:
		return nil, nil
	case 1:
		return stores[0], nil
	default:
		return cache.NewCompositeStore(stores...), nil
	}
}

// Apply creates every configured namespace on c.
func (c *Config) Apply(ca *cache.Cache) error {
	for _, name := range c.NamespaceNames() {
		if err := ca.CreateNamespace(name, c.Namespaces[name].CacheConfig()); err != nil {
			return err
		}
	}
	return nil
}

// ownedRedisStore closes the client it was opened with.
type ownedRedisStore struct {
	cache.SnapshotStore
	client *redis.Client
}

func (s *ownedRedisStore) Close() error {
	return s.client.Close()
}

func (c *Config) redisStore(ctx context.Context) (cache.SnapshotStore, error) {
	rc := c.Snapshots.Redis
	if rc == nil {
		return nil, errors.Mark(errors.New("snapshots.redis is required for the redis backend"), cache.ErrConfiguration)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", rc.Addr)
	}
	return &ownedRedisStore{
		SnapshotStore: cache.NewRedisStore(client, rc.Prefix, rc.Expiry.Duration()),
		client:        client,
	}, nil
}
