package cache

import (
	"context"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
)

// Fetcher produces the authoritative value for a key on a miss. The cache
// imposes no timeout of its own; bound ctx or the fetcher itself.
type Fetcher[T any] func(ctx context.Context) (T, error)

type callOptions struct {
	bypassCache bool
	forceFresh  bool
	priority    Priority
}

// CallOption configures a single Get, Set or Warm call.
type CallOption func(*callOptions)

// BypassCache calls the fetcher without reading or writing the namespace.
func BypassCache() CallOption {
	return func(o *callOptions) { o.bypassCache = true }
}

// ForceFresh skips the lookup and goes straight to the miss path; the
// fetched value is stored as usual.
func ForceFresh() CallOption {
	return func(o *callOptions) { o.forceFresh = true }
}

// WithPriority sets the priority of the stored entry. Without it the
// existing entry's priority is kept, or the namespace default is used.
func WithPriority(p Priority) CallOption {
	return func(o *callOptions) { o.priority = p }
}

func applyCallOptions(opts []CallOption) (callOptions, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.priority != "" && !o.priority.Valid() {
		return o, configErrorf("unknown priority %q", o.priority)
	}
	return o, nil
}

// View binds a namespace to a value type and its Codec.
type View[T any] struct {
	cache     *Cache
	namespace string
	codec     Codec[T]
}

// NewView returns a typed handle on namespace. A nil codec selects MsgpackCodec.
func NewView[T any](c *Cache, namespace string, codec Codec[T]) *View[T] {
	if codec == nil {
		codec = MsgpackCodec[T]{}
	}
	return &View[T]{cache: c, namespace: namespace, codec: codec}
}

// Get returns the value for key, calling fetch only on a miss. See the
// package documentation for the full hit, stale and miss rules.
func (v *View[T]) Get(ctx context.Context, key string, fetch Fetcher[T], opts ...CallOption) (T, error) {
	var zero T
	if v.cache.isClosed() {
		return zero, ErrClosed
	}
	n, err := v.cache.namespace(v.namespace)
	if err != nil {
		return zero, err
	}
	o, err := applyCallOptions(opts)
	if err != nil {
		return zero, err
	}
	started := time.Now()
	defer func() { n.recordLatency(time.Since(started)) }()

	ld := v.loader(n, fetch)
	if o.bypassCache {
		res, err := n.fetch(ctx, key, ld, o.priority, writeNone, v.cache.now)
		if err != nil {
			return zero, err
		}
		return v.resolve(res)
	}

	if !o.forceFresh {
		entry, state := n.lookup(key, v.cache.now())
		if state != lookupMiss {
			val, err := decodeValue(v.codec, entry.Value, entry.IsCompressed)
			if err == nil {
				if state == lookupStale {
					v.cache.revalidate(n, key, ld)
				}
				return val, nil
			}
			n.discardCorrupt(key, err)
		}
	}

	n.countMiss()
	res, err := n.fetch(ctx, key, ld, o.priority, writeMiss, v.cache.now)
	if err != nil {
		return zero, err
	}
	return v.resolve(res)
}

// Set stores value under key without calling a fetcher. It is subject to
// eviction and compression like any fetched value.
func (v *View[T]) Set(ctx context.Context, key string, value T, opts ...CallOption) error {
	if v.cache.isClosed() {
		return ErrClosed
	}
	n, err := v.cache.namespace(v.namespace)
	if err != nil {
		return err
	}
	o, err := applyCallOptions(opts)
	if err != nil {
		return err
	}
	data, err := encodeValue(v.codec, value, n.cfg.Compression)
	if err != nil {
		return err
	}
	res := result{value: value, data: data, compressed: n.cfg.Compression}
	if _, err := n.put(key, res, o.priority, nil, writeMiss, v.cache.now()); err != nil {
		return errors.Wrapf(err, "namespace %s key %s", v.namespace, key)
	}
	return nil
}

// Track registers fetch as the way to refetch key, so the background
// refresher keeps the entry warm even if it was written with Set.
func (v *View[T]) Track(key string, fetch Fetcher[T]) error {
	n, err := v.cache.namespace(v.namespace)
	if err != nil {
		return err
	}
	n.track(key, v.loader(n, fetch))
	return nil
}

// loader adapts a typed fetcher to the namespace's encoded representation.
func (v *View[T]) loader(n *namespace, fetch Fetcher[T]) loader {
	compressed := n.cfg.Compression
	return func(ctx context.Context) (result, error) {
		val, err := fetch(ctx)
		if err != nil {
			return result{}, err
		}
		data, err := encodeValue(v.codec, val, compressed)
		if err != nil {
			return result{}, err
		}
		return result{value: val, data: data, compressed: compressed}, nil
	}
}

// resolve extracts a T from a shared fetch result. The Go value is reused
// only when its dynamic type is exactly T; interface callers and callers
// that joined a flight started by another type decode the payload instead.
func (v *View[T]) resolve(res result) (T, error) {
	if res.value != nil && reflect.TypeOf(res.value) == reflect.TypeFor[T]() {
		return res.value.(T), nil
	}
	return decodeValue(v.codec, res.data, res.compressed)
}

// revalidate refetches a stale entry in the background. Failures are
// logged; the next caller simply tries again.
func (c *Cache) revalidate(n *namespace, key string, ld loader) {
	c.spawn(func() {
		if _, err := n.fetch(c.ctx, key, ld, "", writeMiss, c.now); err != nil {
			n.log.Warn("revalidation of %s failed: %s", key, err)
		}
	})
}

// Get is NewView(c, namespace, nil).Get.
func Get[T any](ctx context.Context, c *Cache, namespace, key string, fetch Fetcher[T], opts ...CallOption) (T, error) {
	return NewView[T](c, namespace, nil).Get(ctx, key, fetch, opts...)
}

// Set is NewView(c, namespace, nil).Set.
func Set[T any](ctx context.Context, c *Cache, namespace, key string, value T, opts ...CallOption) error {
	return NewView[T](c, namespace, nil).Set(ctx, key, value, opts...)
}
