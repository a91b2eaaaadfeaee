package cache

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// SnapshotFileExt is the suffix of snapshot files written by NewFileStore.
const SnapshotFileExt = ".snapshot.gz"

type fileStore struct {
	dir string
}

var _ SnapshotStore = (*fileStore)(nil)

// NewFileStore returns a SnapshotStore writing one file per namespace into
// dir, which is created if needed. Writes go to a temporary file that is
// renamed over the previous snapshot.
func NewFileStore(dir string) (SnapshotStore, error) {
	if dir == "" {
		return nil, configErrorf("snapshot directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrapf(err, "cache: create snapshot directory %s", dir)
	}
	return &fileStore{dir: dir}, nil
}

// SnapshotFileName maps a namespace to its file name. Names that are not
// already filesystem safe get a hash suffix so distinct namespaces never
// share a file.
func SnapshotFileName(namespace string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, namespace)
	if safe != namespace || strings.HasPrefix(safe, ".") {
		safe = strings.TrimLeft(safe, ".") + "-" + strconv.FormatUint(xxhash.Sum64String(namespace), 16)
	}
	return safe + SnapshotFileExt
}

func (s *fileStore) path(namespace string) string {
	return filepath.Join(s.dir, SnapshotFileName(namespace))
}

func (s *fileStore) Load(_ context.Context, namespace string) ([]byte, error) {
	data, err := os.ReadFile(s.path(namespace))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cache: read snapshot of %s", namespace)
	}
	return data, nil
}

func (s *fileStore) Save(_ context.Context, namespace string, data []byte) error {
	target := s.path(namespace)
	tmp := target + "." + uuid.NewString() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0640)
	if err != nil {
		return errors.Wrap(err, "cache: create snapshot file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "cache: write snapshot file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "cache: sync snapshot file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "cache: close snapshot file")
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "cache: rename snapshot file")
	}
	return nil
}

func (s *fileStore) Close() error {
	return nil
}
