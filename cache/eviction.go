package cache

import "sort"

// sortForEviction orders entries so the first element is the next to be
// evicted: low priority before medium before high, then least recently
// accessed first.
func sortForEviction(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if ra, rb := a.Priority.evictionRank(), b.Priority.evictionRank(); ra != rb {
			return ra < rb
		}
		if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
			return a.LastAccessedAt.Before(b.LastAccessedAt)
		}
		return a.touched < b.touched
	})
}

// countTarget is the entry count a full namespace is trimmed down to. It
// always leaves room for at least one insert.
func countTarget(maxEntries int, fraction float64) int {
	target := int(float64(maxEntries) * fraction)
	if target > maxEntries-1 {
		target = maxEntries - 1
	}
	if target < 0 {
		target = 0
	}
	return target
}

// makeRoomLocked evicts entries so that key can be stored with size bytes.
// Eviction only starts once a limit would be crossed, and then continues
// down to the configured target so the next few inserts do not evict again.
func (n *namespace) makeRoomLocked(key string, size int) int {
	var oldSize int
	existing, replacing := n.store.get(key)
	if replacing {
		oldSize = existing.SizeBytes
	}
	cfg := n.cfg
	overCount := cfg.MaxEntries > 0 && !replacing && n.store.len() >= cfg.MaxEntries
	overBytes := cfg.MaxBytes > 0 && n.store.bytes-int64(oldSize)+int64(size) > cfg.MaxBytes
	if !overCount && !overBytes {
		return 0
	}
	targetCount := countTarget(cfg.MaxEntries, cfg.EvictionTarget)
	targetBytes := int64(float64(cfg.MaxBytes) * cfg.EvictionTarget)

	candidates := make([]*Entry, 0, n.store.len())
	for k, e := range n.store.entries {
		if k != key {
			candidates = append(candidates, e)
		}
	}
	sortForEviction(candidates)

	evicted := 0
	for _, e := range candidates {
		countOK := !overCount || n.store.len() <= targetCount
		bytesOK := !overBytes || n.store.bytes-int64(oldSize)+int64(size) <= targetBytes
		if countOK && bytesOK {
			break
		}
		n.removeLocked(e.Key)
		n.evictions++
		evicted++
	}
	return evicted
}

// trimLocked enforces the capacity limits after a bulk load, where entries
// were inserted without makeRoomLocked.
func (n *namespace) trimLocked() int {
	cfg := n.cfg
	overCount := cfg.MaxEntries > 0 && n.store.len() > cfg.MaxEntries
	overBytes := cfg.MaxBytes > 0 && n.store.bytes > cfg.MaxBytes
	if !overCount && !overBytes {
		return 0
	}
	candidates := make([]*Entry, 0, n.store.len())
	for _, e := range n.store.entries {
		candidates = append(candidates, e)
	}
	sortForEviction(candidates)

	evicted := 0
	for _, e := range candidates {
		if (cfg.MaxEntries == 0 || n.store.len() <= cfg.MaxEntries) &&
			(cfg.MaxBytes == 0 || n.store.bytes <= cfg.MaxBytes) {
			break
		}
		n.removeLocked(e.Key)
		n.evictions++
		evicted++
	}
	return evicted
}
