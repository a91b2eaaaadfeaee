package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/futurelot/nscache/cache"
	"github.com/futurelot/nscache/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	ctx := context.Background()
	c := cache.New(ctx, cache.WithLogger(logger.NewTestLogger()))
	t.Cleanup(func() { c.Close(ctx) })

	require.NoError(t, c.CreateNamespace("market-data", cache.NamespaceConfig{MaxEntries: 2}))
	require.NoError(t, c.CreateNamespace("predictions", cache.NamespaceConfig{}))
	for _, city := range []string{"austin", "miami", "denver"} {
		_, err := cache.Get(ctx, c, "market-data", city, func(ctx context.Context) (string, error) {
			return city, nil
		})
		require.NoError(t, err)
	}
	_, err := cache.Get(ctx, c, "market-data", "denver", func(ctx context.Context) (string, error) {
		t.Error("unexpected fetch")
		return "", nil
	})
	require.NoError(t, err)
	return c
}

func TestCollector(t *testing.T) {
	c := newTestCache(t)
	collector := NewCollector(c, "")

	expected := `
# HELP nscache_evictions_total Entries evicted to make room.
# TYPE nscache_evictions_total counter
nscache_evictions_total{namespace="market-data"} 1
nscache_evictions_total{namespace="predictions"} 0
# HELP nscache_entries Entries currently stored.
# TYPE nscache_entries gauge
nscache_entries{namespace="market-data"} 2
nscache_entries{namespace="predictions"} 0
# HELP nscache_hits_total Lookups served from the cache.
# TYPE nscache_hits_total counter
nscache_hits_total{namespace="market-data"} 1
nscache_hits_total{namespace="predictions"} 0
# HELP nscache_misses_total Lookups that called the fetcher.
# TYPE nscache_misses_total counter
nscache_misses_total{namespace="market-data"} 3
nscache_misses_total{namespace="predictions"} 0
# HELP nscache_hit_ratio Hits over hits plus misses.
# TYPE nscache_hit_ratio gauge
nscache_hit_ratio{namespace="market-data"} 0.25
nscache_hit_ratio{namespace="predictions"} 0
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"nscache_evictions_total", "nscache_entries", "nscache_hits_total", "nscache_misses_total", "nscache_hit_ratio")
	assert.NoError(t, err)

	// seven series per namespace
	assert.Equal(t, 14, testutil.CollectAndCount(collector))
}

func TestCollectorPrefix(t *testing.T) {
	c := newTestCache(t)
	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(NewCollector(c, "dashboard")))

	count, err := testutil.GatherAndCount(registry, "dashboard_entries")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHandler(t *testing.T) {
	c := newTestCache(t)
	handler, err := Handler(c)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `nscache_entries{namespace="market-data"} 2`)
	assert.Contains(t, string(body), `nscache_access_latency_seconds{namespace="market-data"}`)
}
