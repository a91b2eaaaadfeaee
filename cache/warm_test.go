package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var warmKeys = []string{"austin", "miami", "denver", "boise", "tulsa"}

func countingKeyFetcher() (KeyFetcher[string], *sync.Map) {
	var counts sync.Map
	return func(ctx context.Context, key string) (string, error) {
		v, _ := counts.LoadOrStore(key, new(atomic.Int32))
		v.(*atomic.Int32).Add(1)
		return "stats:" + key, nil
	}, &counts
}

func TestWarmEager(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("neighborhood-stats", NamespaceConfig{TTL: time.Hour}))
	fetch, counts := countingKeyFetcher()

	require.NoError(t, Warm(ctx, c, "neighborhood-stats", warmKeys, fetch, WarmEager))
	stats, _ := c.Stats("neighborhood-stats")
	assert.Equal(t, len(warmKeys), stats.Size)
	for _, key := range warmKeys {
		v, err := Get(ctx, c, "neighborhood-stats", key, failFetcher[string](t))
		assert.NoError(t, err)
		assert.Equal(t, "stats:"+key, v)
	}

	// fresh keys are not fetched again
	require.NoError(t, Warm(ctx, c, "neighborhood-stats", warmKeys, fetch, WarmEager))
	counts.Range(func(key, v any) bool {
		assert.Equal(t, int32(1), v.(*atomic.Int32).Load(), key)
		return true
	})
}

func TestWarmEagerReturnsError(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{}))

	fetch := func(ctx context.Context, key string) (int, error) {
		if key == "bad" {
			return 0, errors.New("no data")
		}
		return len(key), nil
	}
	err := Warm(ctx, c, "ns", []string{"a", "bad", "ccc"}, fetch, WarmEager)
	assert.True(t, errors.Is(err, ErrFetch))
	_, ok, _ := c.Entry("ns", "ccc")
	assert.True(t, ok)
	_, ok, _ = c.Entry("ns", "bad")
	assert.False(t, ok)
}

func TestWarmEagerManyKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{MaxEntries: 1000}))

	var inflight, peak atomic.Int32
	fetch := func(ctx context.Context, key string) (string, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inflight.Add(-1)
		return key, nil
	}
	keys := make([]string, 100)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%03d", i)
	}
	require.NoError(t, Warm(ctx, c, "ns", keys, fetch, WarmEager))
	stats, _ := c.Stats("ns")
	assert.Equal(t, 100, stats.Size)
	assert.LessOrEqual(t, peak.Load(), int32(WarmConcurrency))
}

func TestWarmLazy(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{TTL: time.Hour, RefreshInterval: 100 * time.Millisecond}))
	fetch, _ := countingKeyFetcher()

	started := time.Now()
	require.NoError(t, Warm(ctx, c, "ns", warmKeys, fetch, WarmLazy))
	assert.Less(t, time.Since(started), 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		stats, _ := c.Stats("ns")
		return stats.Size == len(warmKeys)
	}, 2*time.Second, 10*time.Millisecond)
	for _, key := range warmKeys {
		v, err := Get(ctx, c, "ns", key, failFetcher[string](t))
		assert.NoError(t, err)
		assert.Equal(t, "stats:"+key, v)
	}
}

func TestWarmLazyLogsFailures(t *testing.T) {
	c, log := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{TTL: 50 * time.Millisecond}))

	fetch := func(ctx context.Context, key string) (string, error) {
		return "", errors.New("no data")
	}
	require.NoError(t, Warm(ctx, c, "ns", []string{"a", "b"}, fetch, WarmLazy))
	assert.Eventually(t, func() bool {
		return log.Contains("WARNING", "lazy warm of b failed")
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, log.Contains("WARNING", "lazy warm of a failed"))
}

func TestWarmLazyStopsOnClose(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{TTL: time.Hour}))
	fetch, _ := countingKeyFetcher()

	require.NoError(t, Warm(ctx, c, "ns", warmKeys, fetch, WarmLazy))
	done := make(chan struct{})
	go func() {
		c.Close(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close blocked on a lazy warm")
	}
	stats, _ := c.Stats("ns")
	assert.Less(t, stats.Size, len(warmKeys))
}

func TestWarmInvalid(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNamespace("ns", NamespaceConfig{}))
	fetch, _ := countingKeyFetcher()

	err := Warm(ctx, c, "ns", warmKeys, fetch, WarmStrategy(7))
	assert.True(t, errors.Is(err, ErrConfiguration))
	err = Warm(ctx, c, "nope", warmKeys, fetch, WarmEager)
	assert.True(t, errors.Is(err, ErrUnknownNamespace))
	assert.NoError(t, Warm(ctx, c, "ns", nil, fetch, WarmLazy))

	assert.Equal(t, "eager", WarmEager.String())
	assert.Equal(t, "lazy", WarmLazy.String())
	assert.Equal(t, "unknown", WarmStrategy(7).String())
}
