package cache

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/futurelot/nscache/compress"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotVersion is written into every snapshot; DecodeSnapshot rejects
// other versions.
const SnapshotVersion = 1

// Snapshot is the persisted form of one namespace.
type Snapshot struct {
	Version   int                      `msgpack:"version"`
	ID        string                   `msgpack:"id"`
	Namespace string                   `msgpack:"namespace"`
	SavedAt   time.Time                `msgpack:"saved_at"`
	Entries   map[string]SnapshotEntry `msgpack:"entries"`
}

// SnapshotEntry carries an Entry and a checksum of its payload.
type SnapshotEntry struct {
	Entry    Entry  `msgpack:"entry"`
	Checksum uint64 `msgpack:"checksum"`
}

// Verify reports whether the payload matches its checksum and key.
func (e SnapshotEntry) Verify(key string) bool {
	return e.Entry.Key == key && xxhash.Sum64(e.Entry.Value) == e.Checksum
}

// EncodeSnapshot serializes entries of namespace into a gzip compressed
// msgpack blob.
func EncodeSnapshot(namespace string, entries []Entry, savedAt time.Time) ([]byte, error) {
	snap := Snapshot{
		Version:   SnapshotVersion,
		ID:        uuid.NewString(),
		Namespace: namespace,
		SavedAt:   savedAt,
		Entries:   make(map[string]SnapshotEntry, len(entries)),
	}
	for _, e := range entries {
		snap.Entries[e.Key] = SnapshotEntry{Entry: e, Checksum: xxhash.Sum64(e.Value)}
	}
	raw, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, errors.Wrap(err, "cache: marshal snapshot")
	}
	out, err := compress.Gzip(raw)
	if err != nil {
		return nil, errors.Wrap(err, "cache: compress snapshot")
	}
	return out, nil
}

// DecodeSnapshot reverses EncodeSnapshot. All failures are marked ErrDecode.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	raw, err := compress.Gunzip(data)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "cache: decompress snapshot"), ErrDecode)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "cache: unmarshal snapshot"), ErrDecode)
	}
	if snap.Version != SnapshotVersion {
		return nil, errors.Mark(errors.Newf("cache: unsupported snapshot version %d", snap.Version), ErrDecode)
	}
	return &snap, nil
}

// snapshot copies the namespace's entries under its lock if anything
// changed since the last successful snapshot.
func (n *namespace) snapshot() ([]Entry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.dirty {
		return nil, false
	}
	n.dirty = false
	return n.store.all(), true
}

func (n *namespace) markDirty() {
	n.mu.Lock()
	n.dirty = true
	n.mu.Unlock()
}

// load inserts the unexpired, intact entries of snap. It runs before the
// namespace is published, so no hit or miss counters are involved.
func (n *namespace) load(snap *Snapshot, now time.Time) (loaded, expired, corrupt int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for key, se := range snap.Entries {
		if !se.Verify(key) {
			corrupt++
			continue
		}
		if !se.Entry.ExpiresAt.After(now) {
			expired++
			continue
		}
		e := se.Entry
		n.store.put(&e)
		loaded++
	}
	if evicted := n.trimLocked(); evicted > 0 {
		n.log.Debug("evicted %d restored entries over capacity", evicted)
	}
	return loaded, expired, corrupt
}

func (c *Cache) storeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.storeTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.cfg.storeTimeout)
}

// restore loads the last snapshot of n. Every failure degrades to an empty
// namespace.
func (c *Cache) restore(n *namespace) {
	ctx, cancel := c.storeContext(c.ctx)
	defer cancel()
	data, err := c.cfg.store.Load(ctx, n.name)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			n.log.Debug("no snapshot found, starting cold")
		} else {
			n.log.Warn("reading snapshot failed, starting cold: %s", err)
		}
		return
	}
	snap, err := DecodeSnapshot(data)
	if err == nil && snap.Namespace != n.name {
		err = errors.Newf("snapshot belongs to namespace %q", snap.Namespace)
	}
	if err != nil {
		n.log.Warn("corrupt snapshot ignored, starting cold: %s", err)
		return
	}
	loaded, expired, corrupt := n.load(snap, c.now())
	if corrupt > 0 {
		n.log.Warn("dropped %d snapshot entries with bad checksums", corrupt)
	}
	n.log.Info("restored %d entries from snapshot %s (%d expired)", loaded, snap.ID, expired)
}

// persistNamespace writes a snapshot of n if it is dirty. On failure the
// namespace is marked dirty again so the next cycle retries.
func (c *Cache) persistNamespace(ctx context.Context, n *namespace) error {
	n.persistMu.Lock()
	defer n.persistMu.Unlock()
	entries, ok := n.snapshot()
	if !ok {
		return nil
	}
	data, err := EncodeSnapshot(n.name, entries, c.now())
	if err != nil {
		n.markDirty()
		return errors.Mark(errors.Wrapf(err, "namespace %s", n.name), ErrPersistence)
	}
	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.cfg.store.Save(sctx, n.name, data); err != nil {
		n.markDirty()
		return errors.Mark(errors.Wrapf(err, "cache: save snapshot of namespace %s", n.name), ErrPersistence)
	}
	n.log.Trace("snapshot written (%d entries, %d bytes)", len(entries), len(data))
	return nil
}

func (c *Cache) persistable() []*namespace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*namespace
	for _, n := range c.namespaces {
		if n.cfg.PersistToDisk {
			out = append(out, n)
		}
	}
	return out
}

// persistAll snapshots every dirty persistable namespace. One failing
// namespace does not stop the others.
func (c *Cache) persistAll(ctx context.Context) error {
	var errs error
	for _, n := range c.persistable() {
		if err := c.persistNamespace(ctx, n); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

func (c *Cache) runPersist() {
	ticker := time.NewTicker(c.cfg.persistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.persistAll(c.ctx); err != nil {
				c.log.Error("snapshot cycle failed: %s", err)
			}
		}
	}
}

// PersistNow writes a snapshot of every dirty persistable namespace and
// returns the combined error of the ones that failed. The in-memory cache
// is unaffected either way.
func (c *Cache) PersistNow(ctx context.Context) error {
	if c.cfg.store == nil {
		return nil
	}
	if c.isClosed() {
		return ErrClosed
	}
	return c.persistAll(ctx)
}
