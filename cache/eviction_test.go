package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTarget(t *testing.T) {
	tests := []struct {
		max      int
		fraction float64
		want     int
	}{
		{10, 0.9, 9},
		{100, 0.9, 90},
		{2, 0.9, 1},
		{1, 0.9, 0},
		{10, 1.0, 9},
		{10, 0.5, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countTarget(tt.max, tt.fraction), "max=%d fraction=%v", tt.max, tt.fraction)
	}
}

func TestSortForEviction(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []*Entry{
		{Key: "high-old", Priority: PriorityHigh, LastAccessedAt: base},
		{Key: "medium-new", Priority: PriorityMedium, LastAccessedAt: base.Add(2 * time.Second)},
		{Key: "low-new", Priority: PriorityLow, LastAccessedAt: base.Add(3 * time.Second)},
		{Key: "medium-old", Priority: PriorityMedium, LastAccessedAt: base.Add(time.Second)},
		{Key: "low-tie-later", Priority: PriorityLow, LastAccessedAt: base, touched: 9},
		{Key: "low-tie-earlier", Priority: PriorityLow, LastAccessedAt: base, touched: 4},
	}
	sortForEviction(entries)
	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"low-tie-earlier", "low-tie-later", "low-new", "medium-old", "medium-new", "high-old"}, keys)
}

func TestEvictionMaxEntries(t *testing.T) {
	clock := newTestClock()
	c, _ := newTestCache(t, WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{TTL: time.Hour, MaxEntries: 10}))

	for i := 0; i < 15; i++ {
		clock.Advance(time.Millisecond)
		require.NoError(t, Set(ctx, c, "ns", fmt.Sprintf("k%02d", i), i))
		stats, _ := c.Stats("ns")
		assert.LessOrEqual(t, stats.Size, 10)
	}
	stats, _ := c.Stats("ns")
	assert.Equal(t, 10, stats.Size)
	assert.Equal(t, uint64(5), stats.Evictions)
	for i := 0; i < 15; i++ {
		_, ok, _ := c.Entry("ns", fmt.Sprintf("k%02d", i))
		assert.Equal(t, i >= 5, ok, "k%02d", i)
	}
}

func TestEvictionHysteresis(t *testing.T) {
	c, log := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{MaxEntries: 10, EvictionTarget: 0.5}))

	for i := 0; i < 11; i++ {
		require.NoError(t, Set(ctx, c, "ns", fmt.Sprintf("k%02d", i), i))
	}
	stats, _ := c.Stats("ns")
	assert.Equal(t, 6, stats.Size)
	assert.Equal(t, uint64(5), stats.Evictions)
	assert.True(t, log.Contains("DEBUG", "evicted 5 entries to make room for k10"))

	for i := 11; i < 15; i++ {
		require.NoError(t, Set(ctx, c, "ns", fmt.Sprintf("k%02d", i), i))
	}
	stats, _ = c.Stats("ns")
	assert.Equal(t, 10, stats.Size)
	assert.Equal(t, uint64(5), stats.Evictions)
}

func TestEvictionMarketData(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("market-data", NamespaceConfig{TTL: 15 * time.Minute, MaxEntries: 2}))

	for _, city := range []string{"austin", "miami", "denver"} {
		calls := 0
		_, err := Get(ctx, c, "market-data", city, constFetcher(quote{City: city}, &calls))
		require.NoError(t, err)
	}
	stats, _ := c.Stats("market-data")
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, uint64(1), stats.Evictions)

	_, ok, _ := c.Entry("market-data", "austin")
	assert.False(t, ok)
	_, ok, _ = c.Entry("market-data", "miami")
	assert.True(t, ok)
	_, ok, _ = c.Entry("market-data", "denver")
	assert.True(t, ok)
}

func TestEvictionPriorityOrder(t *testing.T) {
	clock := newTestClock()
	c, _ := newTestCache(t, WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{MaxEntries: 3}))

	set := func(key string, p Priority) {
		clock.Advance(time.Second)
		require.NoError(t, Set(ctx, c, "ns", key, key, WithPriority(p)))
	}
	set("a", PriorityHigh)
	set("b", PriorityLow)
	set("c", PriorityMedium)
	set("d", PriorityMedium)

	_, ok, _ := c.Entry("ns", "b")
	assert.False(t, ok, "low priority entry goes first")

	set("e", PriorityMedium)
	_, ok, _ = c.Entry("ns", "c")
	assert.False(t, ok, "then the least recently used medium entry")
	_, ok, _ = c.Entry("ns", "a")
	assert.True(t, ok, "high priority entry survives although oldest")
}

func TestEvictionLeastRecentlyAccessed(t *testing.T) {
	clock := newTestClock()
	c, _ := newTestCache(t, WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{TTL: time.Hour, MaxEntries: 3}))

	for _, key := range []string{"a", "b", "c"} {
		clock.Advance(time.Second)
		require.NoError(t, Set(ctx, c, "ns", key, key))
	}
	clock.Advance(time.Second)
	_, err := Get(ctx, c, "ns", "a", failFetcher[string](t))
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, Set(ctx, c, "ns", "d", "d"))
	_, ok, _ := c.Entry("ns", "b")
	assert.False(t, ok)
	_, ok, _ = c.Entry("ns", "a")
	assert.True(t, ok)
}

func TestEvictionMaxBytes(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{MaxBytes: 100}))

	payload := make([]byte, 25) // 27 bytes once msgpack encoded
	for i := 0; i < 4; i++ {
		require.NoError(t, Set(ctx, c, "ns", fmt.Sprintf("k%d", i), payload))
	}
	stats, _ := c.Stats("ns")
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, int64(81), stats.Bytes)
	assert.Equal(t, uint64(1), stats.Evictions)
	_, ok, _ := c.Entry("ns", "k0")
	assert.False(t, ok)
}

func TestReplaceDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{MaxEntries: 2}))

	require.NoError(t, Set(ctx, c, "ns", "a", 1))
	require.NoError(t, Set(ctx, c, "ns", "b", 2))
	require.NoError(t, Set(ctx, c, "ns", "a", 3))

	stats, _ := c.Stats("ns")
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, uint64(0), stats.Evictions)
}

func TestUnboundedNamespaceNeverEvicts(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{}))

	for i := 0; i < 1000; i++ {
		require.NoError(t, Set(ctx, c, "ns", fmt.Sprintf("k%d", i), i))
	}
	stats, _ := c.Stats("ns")
	assert.Equal(t, 1000, stats.Size)
	assert.Equal(t, uint64(0), stats.Evictions)
}
