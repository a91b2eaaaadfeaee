package cache

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrConfiguration marks programmer errors: unknown namespaces,
	// conflicting or invalid namespace configs.
	ErrConfiguration = errors.New("cache: configuration error")
	// ErrUnknownNamespace is returned for operations on a namespace that was never created.
	ErrUnknownNamespace = errors.Mark(errors.New("cache: unknown namespace"), ErrConfiguration)
	// ErrNamespaceConflict is returned when a namespace is re-created with a different config.
	ErrNamespaceConflict = errors.Mark(errors.New("cache: namespace exists with a different config"), ErrConfiguration)
	// ErrFetch marks errors returned by a caller-supplied fetcher.
	ErrFetch = errors.New("cache: fetch failed")
	// ErrDecode marks stored bytes that could not be decoded.
	ErrDecode = errors.New("cache: decode failed")
	// ErrPersistence marks snapshot read and write failures.
	ErrPersistence = errors.New("cache: persistence failed")
	// ErrSnapshotNotFound is returned by a SnapshotStore with nothing saved for a namespace.
	ErrSnapshotNotFound = errors.New("cache: snapshot not found")
	// ErrClosed is returned by operations on a closed Cache.
	ErrClosed = errors.New("cache: closed")
	// ErrEntryTooLarge is returned by Set for a value larger than the namespace's MaxBytes.
	ErrEntryTooLarge = errors.New("cache: entry larger than namespace capacity")
)

func configErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf("cache: "+format, args...), ErrConfiguration)
}

// FetchError wraps an error returned by a fetcher on the synchronous miss
// path. It unwraps to the fetcher's own error and matches ErrFetch.
type FetchError struct {
	Namespace string
	Key       string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cache: fetch %s/%s: %v", e.Namespace, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }
