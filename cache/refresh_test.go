package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func versioned(key string) (Fetcher[string], *atomic.Int32) {
	var calls atomic.Int32
	return func(ctx context.Context) (string, error) {
		n := calls.Add(1)
		return fmt.Sprintf("%s-v%d", key, n), nil
	}, &calls
}

func TestRefreshNowRefreshesEntriesNearExpiry(t *testing.T) {
	clock := newTestClock()
	c, _ := newTestCache(t, WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("economic-indicators", NamespaceConfig{
		TTL:             10 * time.Minute,
		RefreshInterval: 4 * time.Minute,
	}))
	view := NewView[string](c, "economic-indicators", nil)

	fetchA, callsA := versioned("a")
	fetchB, callsB := versioned("b")
	_, err := view.Get(ctx, "a", fetchA, WithPriority(PriorityHigh))
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)
	_, err = view.Get(ctx, "b", fetchB)
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	_, err = view.Get(ctx, "a", failFetcher[string](t))
	require.NoError(t, err)
	before, _, _ := c.Entry("economic-indicators", "a")

	// a expires in 1m, inside the 2m window; b has 6m left
	n, err := c.RefreshNow(ctx, "economic-indicators")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(2), callsA.Load())
	assert.Equal(t, int32(1), callsB.Load())

	after, _, _ := c.Entry("economic-indicators", "a")
	assert.Equal(t, PriorityHigh, after.Priority)
	assert.Equal(t, before.AccessCount, after.AccessCount)
	assert.True(t, after.LastAccessedAt.Equal(before.LastAccessedAt))
	assert.True(t, after.ExpiresAt.Equal(clock.Now().Add(10*time.Minute)))

	v, err := view.Get(ctx, "a", failFetcher[string](t))
	assert.NoError(t, err)
	assert.Equal(t, "a-v2", v)

	stats, _ := c.Stats("economic-indicators")
	assert.Equal(t, uint64(2), stats.Misses, "refresh is not a miss")
}

func TestRefreshFailureKeepsEntry(t *testing.T) {
	clock := newTestClock()
	c, log := newTestCache(t, WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{TTL: time.Minute, RefreshInterval: time.Minute}))

	calls := 0
	fetch := func(ctx context.Context) (string, error) {
		calls++
		if calls > 1 {
			return "", errors.New("rate limited")
		}
		return "first", nil
	}
	fetchOther, _ := versioned("other")
	_, err := Get(ctx, c, "ns", "k", fetch)
	require.NoError(t, err)
	_, err = Get(ctx, c, "ns", "other", fetchOther)
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	n, err := c.RefreshNow(ctx, "ns")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, log.Contains("WARNING", "refresh of k failed"))

	v, err := Get(ctx, c, "ns", "k", failFetcher[string](t))
	assert.NoError(t, err)
	assert.Equal(t, "first", v)
	v, err = Get(ctx, c, "ns", "other", failFetcher[string](t))
	assert.NoError(t, err)
	assert.Equal(t, "other-v2", v)
}

func TestRefreshOnlyTrackedKeys(t *testing.T) {
	clock := newTestClock()
	c, _ := newTestCache(t, WithClock(clock.Now))
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{TTL: time.Minute, RefreshInterval: time.Minute}))
	view := NewView[string](c, "ns", nil)

	require.NoError(t, view.Set(ctx, "k", "manual"))
	clock.Advance(45 * time.Second)
	n, err := c.RefreshNow(ctx, "ns")
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	fetch, calls := versioned("k")
	require.NoError(t, view.Track("k", fetch))
	n, err = c.RefreshNow(ctx, "ns")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), calls.Load())

	v, err := view.Get(ctx, "k", failFetcher[string](t))
	assert.NoError(t, err)
	assert.Equal(t, "k-v1", v)

	// invalidation forgets the fetcher too
	_, err = c.Invalidate("ns", "k")
	require.NoError(t, err)
	require.NoError(t, view.Set(ctx, "k", "manual"))
	clock.Advance(45 * time.Second)
	n, err = c.RefreshNow(ctx, "ns")
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRefreshDoesNotResurrect(t *testing.T) {
	n := newNamespace("ns", NamespaceConfig{}.WithDefaults(), nil)
	ok, err := n.put("gone", result{data: []byte{0x01}}, "", nil, writeRefresh, time.Now())
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, n.store.len())
}

func TestBackgroundRefresher(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{
		TTL:             40 * time.Millisecond,
		RefreshInterval: 20 * time.Millisecond,
	}))
	fetch, calls := versioned("k")
	_, err := Get(ctx, c, "ns", "k", fetch)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	stats, _ := c.Stats("ns")
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestRefreshClosed(t *testing.T) {
	c, _ := newTestCache(t)
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{}))
	require.NoError(t, c.Close(context.Background()))
	_, err := c.RefreshNow(context.Background(), "ns")
	assert.True(t, errors.Is(err, ErrClosed))
}
