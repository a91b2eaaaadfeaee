// Package cache provides an embedded, multi-namespace fetch-through cache
// for expensive, slowly changing derived data.
//
// # Namespaces
//
// A [Cache] holds any number of independently configured namespaces
// ("market-data", "predictions", ...). Each namespace owns its entries, its
// [NamespaceConfig] and its [Stats], and is guarded by its own mutex, so
// traffic on one namespace never contends with another. Namespaces are
// created with [Cache.CreateNamespace]; re-creating one with the same config
// is a no-op and with a different config fails with [ErrNamespaceConflict].
//
//	c := cache.New(ctx, cache.WithSnapshotStore(store))
//	defer c.Close(ctx)
//	err := c.CreateNamespace("market-data", cache.NamespaceConfig{
//	    TTL:                  15 * time.Minute,
//	    MaxEntries:           1000,
//	    RefreshInterval:      5 * time.Minute,
//	    StaleWhileRevalidate: true,
//	    Compression:          true,
//	    PersistToDisk:        true,
//	})
//
// # Fetch-Through
//
// [Get] (or [View.Get]) returns the cached value for a key and calls the
// [Fetcher] only when it has to:
//
//   - [BypassCache] calls the fetcher and never touches the namespace.
//   - A fresh entry is a hit: its LastAccessedAt and AccessCount are updated
//     and the decoded value is returned.
//   - A stale entry with StaleWhileRevalidate is also a hit: the old value is
//     returned at once and the key is refetched in the background. Errors
//     from that refetch are logged and swallowed.
//   - Anything else, including [ForceFresh], is a miss. The fetcher runs,
//     its value is encoded and stored, and the namespace is marked dirty for
//     the next snapshot. A failing fetcher returns a [*FetchError] to the
//     caller and leaves the namespace untouched.
//
// Misses are single-flight per key: concurrent callers for the same key
// share one fetcher invocation and all observe its value or its error. The
// fetcher runs with the context of the caller that started it, so
// cancelling that context fails every waiter instead of leaving them
// blocked.
//
// An entry whose payload cannot be decoded is dropped and treated as a
// miss; decode errors never reach the caller.
//
// # Values and Codecs
//
// Values are encoded by a [Codec] bound at the call site. [MsgpackCodec] is
// the default; a [View] binds a namespace to a type and a codec:
//
//	quotes := cache.NewView[Quote](c, "market-data", nil)
//	q, err := quotes.Get(ctx, "austin", func(ctx context.Context) (Quote, error) {
//	    return loadQuote(ctx, "austin")
//	})
//
// With Compression enabled the encoded bytes are gzipped. Each entry records
// whether it was compressed, so decoding does not depend on the current
// config.
//
// # Eviction
//
// When a new key arrives in a namespace holding MaxEntries entries (or the
// payload would push it over MaxBytes), entries are evicted until the
// namespace is down to EvictionTarget (90% by default) of its limit. Low
// priority entries go before medium before high, and within a priority the
// least recently accessed go first. Without limits a namespace grows
// without bound.
//
// # Background Refresh
//
// Namespaces with a RefreshInterval run a refresher that, on every tick,
// refetches entries expiring within RefreshWindow (half by default) of the
// interval. Only keys with a known fetcher are refreshed: every key fetched
// through [View.Get] is tracked, and [View.Track] registers one explicitly.
// [Cache.RefreshNow] runs a pass synchronously.
//
// # Persistence
//
// Namespaces with PersistToDisk are snapshotted through a [SnapshotStore]
// every persist interval, when they changed since the last snapshot, and
// once more on [Cache.Close]. A snapshot is a gzip compressed msgpack
// document of every entry with an xxhash checksum of its payload; see
// [EncodeSnapshot]. On CreateNamespace the last snapshot is restored,
// skipping entries that already expired or fail their checksum. A missing
// or corrupt snapshot only means a cold start.
//
// Stores provided:
//
//   - [NewFileStore] writes one file per namespace, atomically via rename.
//   - [NewSQLiteStore] keeps snapshots in a SQLite table using
//     [modernc.org/sqlite].
//   - [NewRedisStore] keeps snapshots under Redis keys using
//     [github.com/redis/go-redis/v9]. The caller owns the client.
//   - [NewInMemoryStore] keeps snapshots in process memory.
//   - [NewCompositeStore] writes to several stores and reads from the first
//     that has a snapshot.
//   - [NewBreakerStore] wraps a store with a circuit breaker from package
//     resilience, so a backend that keeps failing is skipped until its
//     cooldown passes.
//
// # Errors
//
// Errors are built with [github.com/cockroachdb/errors]; test them with
// errors.Is against [ErrConfiguration], [ErrUnknownNamespace],
// [ErrNamespaceConflict], [ErrFetch], [ErrPersistence] and [ErrClosed].
// Only fetcher errors on the synchronous miss path and configuration
// errors are returned from Get; everything else is logged and degrades to a
// miss or a skipped cycle.
package cache
