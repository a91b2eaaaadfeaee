package cache

import (
	"sync"
	"time"
	"unsafe"

	"github.com/shirou/gopsutil/v4/mem"
)

// entryOverhead approximates the in-memory cost of an entry beyond its key
// and payload: the Entry struct and its map slot.
const entryOverhead = int64(unsafe.Sizeof(Entry{})) + 16

// Analytics is a derived, read-only view of a namespace.
type Analytics struct {
	Stats
	HitRate float64 `json:"hit_rate"`
	// MemoryBytes estimates the memory held by entries, keys and bookkeeping.
	MemoryBytes int64 `json:"memory_bytes"`
	// MemoryShare is MemoryBytes over total system memory, or zero when the
	// total cannot be read.
	MemoryShare float64 `json:"memory_share"`
	// Expired counts entries already past their expiry and still present.
	Expired int `json:"expired"`
	// ExpiringWithin maps a horizon to the number of unexpired entries
	// that expire within it.
	ExpiringWithin       map[time.Duration]int `json:"expiring_within"`
	PriorityDistribution map[Priority]int      `json:"priority_distribution"`
}

// AnalyticsHorizons are the expiry horizons reported by Analytics.
var AnalyticsHorizons = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

var (
	systemMemoryOnce  sync.Once
	systemMemoryTotal uint64
)

func systemMemory() uint64 {
	systemMemoryOnce.Do(func() {
		if vm, err := mem.VirtualMemory(); err == nil {
			systemMemoryTotal = vm.Total
		}
	})
	return systemMemoryTotal
}

// Analytics summarizes a namespace: hit rate, memory estimate, upcoming
// expiries and how entries are spread over priorities.
func (c *Cache) Analytics(namespace string) (Analytics, error) {
	n, err := c.namespace(namespace)
	if err != nil {
		return Analytics{}, err
	}
	stats := n.stats()
	entries := n.entries()
	now := c.now()

	a := Analytics{
		Stats:                stats,
		HitRate:              stats.HitRate(),
		ExpiringWithin:       make(map[time.Duration]int, len(AnalyticsHorizons)),
		PriorityDistribution: map[Priority]int{PriorityHigh: 0, PriorityMedium: 0, PriorityLow: 0},
	}
	for _, h := range AnalyticsHorizons {
		a.ExpiringWithin[h] = 0
	}
	for i := range entries {
		e := &entries[i]
		a.MemoryBytes += int64(e.SizeBytes) + int64(len(e.Key)) + entryOverhead
		a.PriorityDistribution[e.Priority]++
		if e.Stale(now) {
			a.Expired++
			continue
		}
		left := e.ExpiresAt.Sub(now)
		for _, h := range AnalyticsHorizons {
			if left <= h {
				a.ExpiringWithin[h]++
			}
		}
	}
	if total := systemMemory(); total > 0 {
		a.MemoryShare = float64(a.MemoryBytes) / float64(total)
	}
	return a, nil
}
