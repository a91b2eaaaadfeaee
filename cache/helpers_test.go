package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/futurelot/nscache/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, opts ...Option) (*Cache, *logger.TestLogger) {
	t.Helper()
	log := logger.NewTestLogger()
	c := New(context.Background(), append([]Option{WithLogger(log)}, opts...)...)
	t.Cleanup(func() { c.Close(context.Background()) })
	return c, log
}

func constFetcher[T any](v T, calls *int) Fetcher[T] {
	return func(ctx context.Context) (T, error) {
		*calls++
		return v, nil
	}
}

func failFetcher[T any](t *testing.T) Fetcher[T] {
	return func(ctx context.Context) (T, error) {
		t.Helper()
		t.Errorf("fetcher should not have been called")
		var zero T
		return zero, nil
	}
}

type quote struct {
	City   string  `msgpack:"city"`
	Median int64   `msgpack:"median"`
	Growth float64 `msgpack:"growth"`
}
