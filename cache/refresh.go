package cache

import (
	"context"
	"sync"
	"time"
)

type refreshJob struct {
	key string
	ld  loader
}

// refreshCandidates lists tracked entries that expire within the refresh
// window of now.
func (n *namespace) refreshCandidates(now time.Time) []refreshJob {
	window := time.Duration(float64(n.cfg.RefreshInterval) * n.cfg.RefreshWindow)
	n.mu.Lock()
	defer n.mu.Unlock()
	var jobs []refreshJob
	for key, e := range n.store.entries {
		if e.ExpiresAt.Sub(now) >= window {
			continue
		}
		if ld, ok := n.loaders[key]; ok {
			jobs = append(jobs, refreshJob{key: key, ld: ld})
		}
	}
	return jobs
}

// refreshNamespace refetches every entry nearing expiry, concurrently, and
// returns once all of them finished. A failing key is logged and does not
// affect the others.
func (c *Cache) refreshNamespace(ctx context.Context, n *namespace) int {
	jobs := n.refreshCandidates(c.now())
	if len(jobs) == 0 {
		return 0
	}
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job refreshJob) {
			defer wg.Done()
			if _, err := n.fetch(ctx, job.key, job.ld, "", writeRefresh, c.now); err != nil {
				n.log.Warn("refresh of %s failed: %s", job.key, err)
			}
		}(job)
	}
	wg.Wait()
	n.log.Trace("refreshed %d entries", len(jobs))
	return len(jobs)
}

func (c *Cache) runRefresher(n *namespace) {
	ticker := time.NewTicker(n.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.refreshNamespace(c.ctx, n)
		}
	}
}

// RefreshNow runs one refresher pass over namespace synchronously and
// returns how many entries it attempted to refresh. It works whether or not
// the namespace has a RefreshInterval, which makes it usable from tests.
func (c *Cache) RefreshNow(ctx context.Context, namespace string) (int, error) {
	if c.isClosed() {
		return 0, ErrClosed
	}
	n, err := c.namespace(namespace)
	if err != nil {
		return 0, err
	}
	return c.refreshNamespace(ctx, n), nil
}
