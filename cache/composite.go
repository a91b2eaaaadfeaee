package cache

import (
	"context"

	"github.com/cockroachdb/errors"
)

type compositeStore struct {
	stores []SnapshotStore
}

var _ SnapshotStore = (*compositeStore)(nil)

// NewCompositeStore returns a SnapshotStore that chains stores together.
// Load checks stores in order and returns the first snapshot found, falling
// through stores that fail. Save writes to all stores.
// At least one store must be provided; panics if empty.
func NewCompositeStore(stores ...SnapshotStore) SnapshotStore {
	if len(stores) == 0 {
		panic("cache: NewCompositeStore requires at least one store")
	}
	return &compositeStore{stores: stores}
}

func (c *compositeStore) Load(ctx context.Context, namespace string) ([]byte, error) {
	var firstErr error
	for _, store := range c.stores {
		data, err := store.Load(ctx, namespace)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrSnapshotNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, ErrSnapshotNotFound
}

func (c *compositeStore) Save(ctx context.Context, namespace string, data []byte) error {
	var firstErr error
	for _, store := range c.stores {
		if err := store.Save(ctx, namespace, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *compositeStore) Close() error {
	var firstErr error
	for _, store := range c.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
