package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

var _ SnapshotStore = (*sqliteStore)(nil)

// NewSQLiteStore returns a SnapshotStore backed by SQLite, one row per
// namespace. If dbPath is empty or ":memory:", an in-memory database is used.
func NewSQLiteStore(ctx context.Context, dbPath string) (SnapshotStore, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS snapshots (
		namespace TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Load(ctx context.Context, namespace string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE namespace = ?`, namespace,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cache: load snapshot of %s", namespace)
	}
	return data, nil
}

func (s *sqliteStore) Save(ctx context.Context, namespace string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (namespace, data, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		namespace, data, time.Now().UnixNano(),
	)
	if err != nil {
		return errors.Wrapf(err, "cache: save snapshot of %s", namespace)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
