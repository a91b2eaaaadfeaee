package cache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// WarmStrategy selects how Warm populates a namespace.
type WarmStrategy int

const (
	// WarmEager fetches every key concurrently and returns when all are done.
	WarmEager WarmStrategy = iota
	// WarmLazy returns immediately and spreads the fetches evenly across
	// one RefreshInterval (or one TTL when the namespace has no refresher).
	WarmLazy
)

func (s WarmStrategy) String() string {
	switch s {
	case WarmEager:
		return "eager"
	case WarmLazy:
		return "lazy"
	default:
		return "unknown"
	}
}

// WarmConcurrency bounds the concurrent fetches of an eager warm.
const WarmConcurrency = 16

// KeyFetcher produces the value for one key during Warm.
type KeyFetcher[T any] func(ctx context.Context, key string) (T, error)

// Warm loads keys through the fetch-through path, so keys that are already
// fresh are not fetched again. An eager warm returns the first fetch error;
// a lazy warm logs failures instead.
func (v *View[T]) Warm(ctx context.Context, keys []string, fetch KeyFetcher[T], strategy WarmStrategy, opts ...CallOption) error {
	if v.cache.isClosed() {
		return ErrClosed
	}
	n, err := v.cache.namespace(v.namespace)
	if err != nil {
		return err
	}
	if _, err := applyCallOptions(opts); err != nil {
		return err
	}
	bind := func(key string) Fetcher[T] {
		return func(ctx context.Context) (T, error) { return fetch(ctx, key) }
	}

	switch strategy {
	case WarmEager:
		var g errgroup.Group
		g.SetLimit(WarmConcurrency)
		for _, key := range keys {
			g.Go(func() error {
				_, err := v.Get(ctx, key, bind(key), opts...)
				return err
			})
		}
		return g.Wait()
	case WarmLazy:
		if len(keys) == 0 {
			return nil
		}
		span := n.cfg.RefreshInterval
		if span <= 0 {
			span = n.cfg.TTL
		}
		step := span / time.Duration(len(keys))
		keys = append([]string(nil), keys...)
		c := v.cache
		c.spawn(func() {
			timer := time.NewTimer(0)
			defer timer.Stop()
			for i, key := range keys {
				if i > 0 {
					timer.Reset(step)
				}
				select {
				case <-c.ctx.Done():
					return
				case <-timer.C:
				}
				if _, err := v.Get(c.ctx, key, bind(key), opts...); err != nil {
					n.log.Warn("lazy warm of %s failed: %s", key, err)
				}
			}
		})
		return nil
	default:
		return configErrorf("unknown warm strategy %d", strategy)
	}
}

// Warm is NewView(c, namespace, nil).Warm.
func Warm[T any](ctx context.Context, c *Cache, namespace string, keys []string, fetch KeyFetcher[T], strategy WarmStrategy, opts ...CallOption) error {
	return NewView[T](c, namespace, nil).Warm(ctx, keys, fetch, strategy, opts...)
}
