package cache

import (
	"context"
	"sync"
)

type inMemoryStore struct {
	mutex     sync.Mutex
	snapshots map[string][]byte
}

var _ SnapshotStore = (*inMemoryStore)(nil)

// NewInMemoryStore returns a SnapshotStore kept in process memory. It only
// survives a Cache being closed and re-created, not a restart, which makes
// it useful for tests and as a composite layer.
func NewInMemoryStore() SnapshotStore {
	return &inMemoryStore{snapshots: make(map[string][]byte)}
}

func (s *inMemoryStore) Load(_ context.Context, namespace string) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	data, ok := s.snapshots[namespace]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *inMemoryStore) Save(_ context.Context, namespace string, data []byte) error {
	s.mutex.Lock()
	s.snapshots[namespace] = append([]byte(nil), data...)
	s.mutex.Unlock()
	return nil
}

func (s *inMemoryStore) Close() error {
	return nil
}
