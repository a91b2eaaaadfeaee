package cache

import (
	"context"
	"sync"
	"time"

	"github.com/futurelot/nscache/logger"
	"golang.org/x/sync/singleflight"
)

// result is what a loader hands back through the single-flight group: the
// typed value for callers of the same type, and the encoded payload for
// everyone else and for the store.
type result struct {
	value      any
	data       []byte
	compressed bool
}

// loader produces a fresh encoded value for one key.
type loader func(ctx context.Context) (result, error)

type lookupState int

const (
	lookupMiss lookupState = iota
	lookupFresh
	lookupStale
)

// writeMode says how a fetched result is written back to the store.
type writeMode int

const (
	// writeNone leaves the store untouched (bypassCache).
	writeNone writeMode = iota
	// writeMiss stores the result as a caller-driven access.
	writeMiss
	// writeRefresh replaces an existing entry without counting an access,
	// and never resurrects an entry that was removed meanwhile.
	writeRefresh
)

// namespace is one named cache. mu guards everything below it; fetchers
// always run outside of it.
type namespace struct {
	name string
	cfg  NamespaceConfig
	log  logger.Logger

	flight singleflight.Group

	// persistMu serializes snapshot writes so an older snapshot never
	// lands after a newer one.
	persistMu sync.Mutex

	mu         sync.Mutex
	store      *store
	loaders    map[string]loader
	hits       uint64
	misses     uint64
	evictions  uint64
	latencyN   uint64
	avgLatency float64
	dirty      bool
}

func newNamespace(name string, cfg NamespaceConfig, log logger.Logger) *namespace {
	return &namespace{
		name:    name,
		cfg:     cfg,
		log:     log,
		store:   newStore(),
		loaders: make(map[string]loader),
	}
}

// lookup returns a copy of the entry for key and records a hit when the
// entry is usable: fresh, or stale with stale-while-revalidate enabled.
func (n *namespace) lookup(key string, now time.Time) (Entry, lookupState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.store.get(key)
	if !ok {
		return Entry{}, lookupMiss
	}
	state := lookupFresh
	if e.Stale(now) {
		if !n.cfg.StaleWhileRevalidate {
			return Entry{}, lookupMiss
		}
		state = lookupStale
	}
	if now.After(e.LastAccessedAt) {
		e.LastAccessedAt = now
	}
	e.AccessCount++
	n.store.touch(e)
	n.hits++
	return *e, state
}

// discardCorrupt drops an entry whose payload failed to decode and takes
// back the hit lookup recorded for it; the caller continues as a miss.
func (n *namespace) discardCorrupt(key string, err error) {
	n.mu.Lock()
	if n.hits > 0 {
		n.hits--
	}
	if n.removeLocked(key) {
		n.dirty = true
	}
	n.mu.Unlock()
	n.log.Warn("dropping undecodable entry %s: %s", key, err)
}

func (n *namespace) countMiss() {
	n.mu.Lock()
	n.misses++
	n.mu.Unlock()
}

// recordLatency folds d into the running mean access latency.
func (n *namespace) recordLatency(d time.Duration) {
	n.mu.Lock()
	n.latencyN++
	n.avgLatency += (float64(d) - n.avgLatency) / float64(n.latencyN)
	n.mu.Unlock()
}

// put stores res under key, evicting first when the namespace is full.
// It returns false when nothing was written.
func (n *namespace) put(key string, res result, priority Priority, ld loader, mode writeMode, now time.Time) (bool, error) {
	size := len(res.data)
	if n.cfg.MaxBytes > 0 && int64(size) > n.cfg.MaxBytes {
		return false, ErrEntryTooLarge
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	existing, ok := n.store.get(key)
	if mode == writeRefresh && !ok {
		return false, nil
	}
	e := &Entry{
		Key:            key,
		Value:          res.data,
		CreatedAt:      now,
		ExpiresAt:      now.Add(n.cfg.TTL),
		LastAccessedAt: now,
		SizeBytes:      size,
		Priority:       priority,
		IsCompressed:   res.compressed,
	}
	if ok {
		e.AccessCount = existing.AccessCount
		if priority == "" {
			e.Priority = existing.Priority
		}
		if mode == writeRefresh {
			e.LastAccessedAt = existing.LastAccessedAt
		}
	}
	if e.Priority == "" {
		e.Priority = n.cfg.DefaultPriority
	}
	if evicted := n.makeRoomLocked(key, size); evicted > 0 {
		n.log.Debug("evicted %d entries to make room for %s", evicted, key)
	}
	n.store.put(e)
	if mode == writeRefresh {
		// a refresh is not an access; keep the entry's place in the LRU order
		e.touched = existing.touched
	}
	if ld != nil {
		n.loaders[key] = ld
	}
	n.dirty = true
	return true, nil
}

// track registers ld as the refetch function for key.
func (n *namespace) track(key string, ld loader) {
	n.mu.Lock()
	n.loaders[key] = ld
	n.mu.Unlock()
}

func (n *namespace) removeLocked(key string) bool {
	delete(n.loaders, key)
	return n.store.delete(key)
}

func (n *namespace) invalidate(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	ok := n.removeLocked(key)
	if ok {
		n.dirty = true
	}
	return ok
}

func (n *namespace) clear() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := n.store.reset()
	n.loaders = make(map[string]loader)
	n.dirty = true
	return count
}

func (n *namespace) entry(key string) (Entry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.store.get(key)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (n *namespace) entries() []Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.all()
}

func (n *namespace) stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := Stats{
		Namespace:        n.name,
		Hits:             n.hits,
		Misses:           n.misses,
		Evictions:        n.evictions,
		Size:             n.store.len(),
		Bytes:            n.store.bytes,
		AvgAccessLatency: time.Duration(n.avgLatency),
	}
	for _, e := range n.store.entries {
		if s.OldestEntry.IsZero() || e.CreatedAt.Before(s.OldestEntry) {
			s.OldestEntry = e.CreatedAt
		}
		if e.CreatedAt.After(s.NewestEntry) {
			s.NewestEntry = e.CreatedAt
		}
	}
	return s
}

// flightOutcome is what the single-flight group shares: the result and
// whether the caller that ran the loader wrote it to the store.
type flightOutcome struct {
	res    result
	mode   writeMode
	stored bool
}

// fetch runs ld at most once at a time per key. Concurrent callers for the
// same key share the outcome of the call already in flight. A miss that
// joined a flight which did not store (a bypass, or a refresh of a removed
// key) stores the shared result itself.
func (n *namespace) fetch(ctx context.Context, key string, ld loader, priority Priority, mode writeMode, now func() time.Time) (result, error) {
	v, err, _ := n.flight.Do(key, func() (any, error) {
		res, err := ld(ctx)
		if err != nil {
			return nil, err
		}
		out := flightOutcome{res: res, mode: mode}
		if mode != writeNone {
			out.stored, err = n.put(key, res, priority, ld, mode, now())
			if err != nil {
				n.log.Warn("not caching %s: %s", key, err)
			}
		}
		return out, nil
	})
	if err != nil {
		return result{}, &FetchError{Namespace: n.name, Key: key, Err: err}
	}
	out := v.(flightOutcome)
	if mode == writeMiss && out.mode != writeMiss && !out.stored {
		if _, err := n.put(key, out.res, priority, ld, writeMiss, now()); err != nil {
			n.log.Warn("not caching %s: %s", key, err)
		}
	}
	return out.res, nil
}
