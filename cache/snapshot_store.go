package cache

import "context"

// SnapshotStore is where namespace snapshots live. Implementations must
// return ErrSnapshotNotFound (possibly wrapped) from Load when nothing was
// saved for a namespace.
type SnapshotStore interface {
	// Load returns the last snapshot saved for namespace.
	Load(ctx context.Context, namespace string) ([]byte, error)
	// Save replaces the snapshot for namespace. A reader must observe either
	// the previous snapshot or the new one, never a partial write.
	Save(ctx context.Context, namespace string, data []byte) error
	// Close releases resources owned by the store.
	Close() error
}
