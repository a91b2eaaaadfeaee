package cache

import "time"

// Priority influences eviction order. It never affects expiry.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// evictionRank orders priorities for eviction; lower ranks go first.
func (p Priority) evictionRank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

// Entry is a single cached value together with its bookkeeping. Value holds
// the encoded payload, gzip compressed when IsCompressed is set.
type Entry struct {
	Key            string    `msgpack:"key" json:"key"`
	Value          []byte    `msgpack:"value" json:"-"`
	CreatedAt      time.Time `msgpack:"created_at" json:"created_at"`
	ExpiresAt      time.Time `msgpack:"expires_at" json:"expires_at"`
	LastAccessedAt time.Time `msgpack:"last_accessed_at" json:"last_accessed_at"`
	AccessCount    uint64    `msgpack:"access_count" json:"access_count"`
	SizeBytes      int       `msgpack:"size_bytes" json:"size_bytes"`
	Priority       Priority  `msgpack:"priority" json:"priority"`
	IsCompressed   bool      `msgpack:"is_compressed" json:"is_compressed"`

	// touched is the store's recency sequence, used to break ties between
	// entries accessed within the same clock tick.
	touched uint64
}

// Stale reports whether the entry has reached its expiry at now.
func (e *Entry) Stale(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// DefaultTTL is used when a NamespaceConfig leaves TTL unset.
const DefaultTTL = 5 * time.Minute

// DefaultEvictionTarget is the fraction of MaxEntries (and MaxBytes) a
// namespace is trimmed down to once it is full.
const DefaultEvictionTarget = 0.9

// DefaultRefreshWindow is the fraction of RefreshInterval before expiry
// inside which the background refresher refetches an entry.
const DefaultRefreshWindow = 0.5

// NamespaceConfig configures a namespace. It is immutable once the
// namespace has been created.
type NamespaceConfig struct {
	// TTL is how long an entry stays fresh. Defaults to DefaultTTL.
	TTL time.Duration
	// MaxEntries bounds the entry count. Zero means unbounded.
	MaxEntries int
	// MaxBytes bounds the summed SizeBytes of all entries. Zero means unbounded.
	MaxBytes int64
	// RefreshInterval enables the background refresher when non-zero.
	RefreshInterval time.Duration
	// StaleWhileRevalidate serves expired values while refetching them.
	StaleWhileRevalidate bool
	// Compression gzips stored payloads.
	Compression bool
	// DefaultPriority applies when a call does not set one. Defaults to medium.
	DefaultPriority Priority
	// PersistToDisk snapshots the namespace through the cache's SnapshotStore.
	PersistToDisk bool
	// EvictionTarget defaults to DefaultEvictionTarget.
	EvictionTarget float64
	// RefreshWindow defaults to DefaultRefreshWindow.
	RefreshWindow float64
}

// WithDefaults fills unset fields the way CreateNamespace does.
func (c NamespaceConfig) WithDefaults() NamespaceConfig {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.DefaultPriority == "" {
		c.DefaultPriority = PriorityMedium
	}
	if c.EvictionTarget == 0 {
		c.EvictionTarget = DefaultEvictionTarget
	}
	if c.RefreshWindow == 0 {
		c.RefreshWindow = DefaultRefreshWindow
	}
	return c
}

// Validate reports whether c, with defaults applied, is accepted by
// CreateNamespace. It does not check PersistToDisk against the cache's
// snapshot store.
func (c NamespaceConfig) Validate() error {
	return c.WithDefaults().validate()
}

func (c NamespaceConfig) validate() error {
	switch {
	case c.TTL < 0:
		return configErrorf("ttl must be positive, got %s", c.TTL)
	case c.MaxEntries < 0:
		return configErrorf("max entries must not be negative, got %d", c.MaxEntries)
	case c.MaxBytes < 0:
		return configErrorf("max bytes must not be negative, got %d", c.MaxBytes)
	case c.RefreshInterval < 0:
		return configErrorf("refresh interval must not be negative, got %s", c.RefreshInterval)
	case !c.DefaultPriority.Valid():
		return configErrorf("unknown priority %q", c.DefaultPriority)
	case c.EvictionTarget <= 0 || c.EvictionTarget > 1:
		return configErrorf("eviction target must be in (0, 1], got %v", c.EvictionTarget)
	case c.RefreshWindow <= 0 || c.RefreshWindow > 1:
		return configErrorf("refresh window must be in (0, 1], got %v", c.RefreshWindow)
	}
	return nil
}

// Stats is a point-in-time copy of a namespace's counters.
type Stats struct {
	Namespace        string        `json:"namespace"`
	Hits             uint64        `json:"hits"`
	Misses           uint64        `json:"misses"`
	Evictions        uint64        `json:"evictions"`
	Size             int           `json:"size"`
	Bytes            int64         `json:"bytes"`
	OldestEntry      time.Time     `json:"oldest_entry"`
	NewestEntry      time.Time     `json:"newest_entry"`
	AvgAccessLatency time.Duration `json:"avg_access_latency"`
}

// HitRate is hits over lookups, or zero before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
