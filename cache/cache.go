package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/futurelot/nscache/logger"
)

// DefaultPersistInterval is how often dirty namespaces are snapshotted when
// WithPersistInterval is not given.
const DefaultPersistInterval = 5 * time.Minute

// DefaultStoreTimeout bounds every SnapshotStore call made by the cache.
const DefaultStoreTimeout = 10 * time.Second

// config holds the resolved configuration for a Cache.
type config struct {
	log             logger.Logger
	store           SnapshotStore
	persistInterval time.Duration
	storeTimeout    time.Duration
	now             func() time.Time
}

// Option configures a Cache.
type Option func(*config)

func defaultConfig() config {
	return config{
		persistInterval: DefaultPersistInterval,
		storeTimeout:    DefaultStoreTimeout,
		now:             time.Now,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.NewConsoleLogger()
	}
	return cfg
}

// WithLogger sets the logger. Defaults to a console logger.
func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithSnapshotStore enables persistence for namespaces with PersistToDisk.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(c *config) { c.store = store }
}

// WithPersistInterval sets the snapshot period. Zero or negative disables
// the periodic task; PersistNow and Close still write snapshots.
func WithPersistInterval(d time.Duration) Option {
	return func(c *config) { c.persistInterval = d }
}

// WithStoreTimeout sets the per-call timeout for SnapshotStore operations.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *config) { c.storeTimeout = d }
}

// WithClock replaces time.Now for entry timestamps and expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// Cache is a registry of independently configured namespaces. Create one
// with New at startup, pass it to whatever needs it and Close it at
// shutdown to stop background tasks and flush snapshots.
type Cache struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config
	log    logger.Logger

	mu         sync.RWMutex
	namespaces map[string]*namespace

	// spawnMu orders goroutine starts against Close so waitGroup.Add never
	// races with waitGroup.Wait.
	spawnMu   sync.Mutex
	closed    bool
	waitGroup sync.WaitGroup
	once      sync.Once
}

// New returns a Cache with no namespaces. Background tasks stop when parent
// is cancelled or Close is called.
func New(parent context.Context, opts ...Option) *Cache {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	c := &Cache{
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		log:        cfg.log,
		namespaces: make(map[string]*namespace),
	}
	if cfg.store != nil && cfg.persistInterval > 0 {
		c.spawn(c.runPersist)
	}
	return c
}

// spawn runs fn in a goroutine tracked by Close. It is a no-op once the
// cache is closed.
func (c *Cache) spawn(fn func()) bool {
	c.spawnMu.Lock()
	defer c.spawnMu.Unlock()
	if c.closed {
		return false
	}
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		fn()
	}()
	return true
}

func (c *Cache) isClosed() bool {
	c.spawnMu.Lock()
	defer c.spawnMu.Unlock()
	return c.closed
}

func (c *Cache) now() time.Time {
	return c.cfg.now()
}

// CreateNamespace registers a namespace. Creating an existing namespace with
// an identical config is a no-op; a different config is rejected with
// ErrNamespaceConflict. Namespaces with PersistToDisk are restored from
// their last snapshot before the call returns.
func (c *Cache) CreateNamespace(name string, cfg NamespaceConfig) error {
	if name == "" {
		return configErrorf("namespace name is required")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.validate(); err != nil {
		return errors.Wrapf(err, "namespace %s", name)
	}
	if cfg.PersistToDisk && c.cfg.store == nil {
		return configErrorf("namespace %s persists to disk but no snapshot store is configured", name)
	}
	if c.isClosed() {
		return ErrClosed
	}

	c.mu.RLock()
	existing, ok := c.namespaces[name]
	c.mu.RUnlock()
	if ok {
		return checkExisting(existing, cfg)
	}

	// restore does store I/O and must not hold c.mu
	n := newNamespace(name, cfg, c.log.WithPrefix("[nscache:"+name+"]"))
	if cfg.PersistToDisk {
		c.restore(n)
	}

	c.mu.Lock()
	if existing, ok := c.namespaces[name]; ok {
		c.mu.Unlock()
		return checkExisting(existing, cfg)
	}
	c.namespaces[name] = n
	c.mu.Unlock()

	if cfg.RefreshInterval > 0 {
		c.spawn(func() { c.runRefresher(n) })
	}
	n.log.Debug("namespace created (ttl=%s max_entries=%d refresh=%s)", cfg.TTL, cfg.MaxEntries, cfg.RefreshInterval)
	return nil
}

func checkExisting(existing *namespace, cfg NamespaceConfig) error {
	if existing.cfg == cfg {
		return nil
	}
	return errors.Wrapf(ErrNamespaceConflict, "namespace %s", existing.name)
}

func (c *Cache) namespace(name string) (*namespace, error) {
	c.mu.RLock()
	n, ok := c.namespaces[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNamespace, "namespace %s", name)
	}
	return n, nil
}

// Namespaces returns the registered namespace names in sorted order.
func (c *Cache) Namespaces() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.namespaces))
	for name := range c.namespaces {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Config returns the resolved config of a namespace.
func (c *Cache) Config(namespace string) (NamespaceConfig, error) {
	n, err := c.namespace(namespace)
	if err != nil {
		return NamespaceConfig{}, err
	}
	return n.cfg, nil
}

// Invalidate removes key from the namespace, returning whether it was present.
func (c *Cache) Invalidate(namespace, key string) (bool, error) {
	n, err := c.namespace(namespace)
	if err != nil {
		return false, err
	}
	return n.invalidate(key), nil
}

// Clear removes every entry from the namespace. Counters are kept.
func (c *Cache) Clear(namespace string) error {
	n, err := c.namespace(namespace)
	if err != nil {
		return err
	}
	count := n.clear()
	n.log.Debug("cleared %d entries", count)
	return nil
}

// Stats returns a copy of the namespace's counters.
func (c *Cache) Stats(namespace string) (Stats, error) {
	n, err := c.namespace(namespace)
	if err != nil {
		return Stats{}, err
	}
	return n.stats(), nil
}

// Entry returns a copy of the stored entry for key, without counting an access.
func (c *Cache) Entry(namespace, key string) (Entry, bool, error) {
	n, err := c.namespace(namespace)
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := n.entry(key)
	return e, ok, nil
}

// Close stops the refreshers and the snapshot task, waits for background
// fetches, writes a final snapshot of every dirty namespace and closes the
// snapshot store. It is safe to call more than once.
func (c *Cache) Close(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		c.spawnMu.Lock()
		c.closed = true
		c.spawnMu.Unlock()
		c.cancel()
		c.waitGroup.Wait()
		if c.cfg.store != nil {
			err = c.persistAll(ctx)
			if cerr := c.cfg.store.Close(); cerr != nil {
				err = errors.CombineErrors(err, errors.Mark(errors.Wrap(cerr, "cache: close snapshot store"), ErrPersistence))
			}
		}
	})
	return err
}
