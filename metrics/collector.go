// Package metrics exports cache statistics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/futurelot/nscache/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "nscache"

// Collector reads cache.Stats for every namespace on each scrape, so the
// cache itself carries no Prometheus state.
type Collector struct {
	cache *cache.Cache

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	entries   *prometheus.Desc
	bytes     *prometheus.Desc
	hitRatio  *prometheus.Desc
	latency   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector for c. An empty prefix selects
// DefaultNamespace.
func NewCollector(c *cache.Cache, prefix string) *Collector {
	if prefix == "" {
		prefix = DefaultNamespace
	}
	labels := []string{"namespace"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(prefix, "", name), help, labels, nil)
	}
	return &Collector{
		cache:     c,
		hits:      desc("hits_total", "Lookups served from the cache."),
		misses:    desc("misses_total", "Lookups that called the fetcher."),
		evictions: desc("evictions_total", "Entries evicted to make room."),
		entries:   desc("entries", "Entries currently stored."),
		bytes:     desc("bytes", "Summed payload size of stored entries."),
		hitRatio:  desc("hit_ratio", "Hits over hits plus misses."),
		latency:   desc("access_latency_seconds", "Mean wall time of a Get call."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.entries
	ch <- c.bytes
	ch <- c.hitRatio
	ch <- c.latency
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.cache.Namespaces() {
		s, err := c.cache.Stats(name)
		if err != nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), name)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions), name)
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Size), name)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.Bytes), name)
		ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, s.HitRate(), name)
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, s.AvgAccessLatency.Seconds(), name)
	}
}

// Handler serves the metrics of c from a dedicated registry.
func Handler(c *cache.Cache) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(c, "")); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}), nil
}
