package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces snapshot keys written by NewRedisStore.
const DefaultRedisPrefix = "nscache:snapshot"

type redisStore struct {
	client *redis.Client
	prefix string
	expiry time.Duration
}

var _ SnapshotStore = (*redisStore)(nil)

// NewRedisStore returns a SnapshotStore keeping each namespace's snapshot
// under "<prefix>:<namespace>". An empty prefix selects DefaultRedisPrefix.
// expiry, when positive, lets Redis drop snapshots nobody refreshed.
// The caller owns the redis.Client lifecycle. Close does not close the client.
func NewRedisStore(client *redis.Client, prefix string, expiry time.Duration) SnapshotStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &redisStore{client: client, prefix: prefix, expiry: expiry}
}

func (s *redisStore) key(namespace string) string {
	return s.prefix + ":" + namespace
}

func (s *redisStore) Load(ctx context.Context, namespace string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(namespace)).Bytes()
	if err == redis.Nil {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cache: load snapshot of %s", namespace)
	}
	return data, nil
}

func (s *redisStore) Save(ctx context.Context, namespace string, data []byte) error {
	// SET replaces the value atomically, so readers never see a partial snapshot.
	if err := s.client.Set(ctx, s.key(namespace), data, s.expiry).Err(); err != nil {
		return errors.Wrapf(err, "cache: save snapshot of %s", namespace)
	}
	return nil
}

// Close is a no-op; the caller owns the redis.Client.
func (s *redisStore) Close() error {
	return nil
}
