package cache

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/futurelot/nscache/resilience"
)

type breakerStore struct {
	store   SnapshotStore
	breaker *resilience.Breaker
}

var _ SnapshotStore = (*breakerStore)(nil)

// NewBreakerStore guards store with a circuit breaker. After
// cfg.MaxFailures consecutive failures Load and Save fail fast with
// resilience.ErrOpen until cfg.Cooldown has passed. ErrSnapshotNotFound is
// not a failure.
func NewBreakerStore(store SnapshotStore, cfg resilience.Config) SnapshotStore {
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool {
			return !errors.Is(err, ErrSnapshotNotFound)
		}
	}
	return &breakerStore{store: store, breaker: resilience.New(cfg)}
}

func (s *breakerStore) Load(ctx context.Context, namespace string) ([]byte, error) {
	var data []byte
	err := s.breaker.Do(func() error {
		var err error
		data, err = s.store.Load(ctx, namespace)
		return err
	})
	return data, err
}

func (s *breakerStore) Save(ctx context.Context, namespace string, data []byte) error {
	return s.breaker.Do(func() error {
		return s.store.Save(ctx, namespace, data)
	})
}

func (s *breakerStore) Close() error {
	return s.store.Close()
}
