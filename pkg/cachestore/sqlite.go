package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a local SQLite database, for
// deployments that want the cache to survive restarts without running
// a separate cache server.
type SQLiteStore struct {
	db *sql.DB
	// modernc sqlite allows one writer at a time; serialize writes
	// instead of surfacing SQLITE_BUSY to callers.
	writeMu sync.Mutex
	now     func() time.Time
}

// NewSQLiteStore opens (or creates) the cache database at path. An
// empty path opens a shared in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			expires INTEGER NOT NULL,
			value BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS cache_expires_idx ON cache (expires)`,
		`PRAGMA journal_mode=WAL`,
	}
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize cache database: %w", err)
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var expires int64
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT expires, value FROM cache WHERE key = ?", key).
		Scan(&expires, &value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if s.now().Unix() >= expires {
		_ = s.Purge(ctx, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, expires time.Time, value []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cache (key, expires, value) VALUES (?, ?, ?) ON CONFLICT (key) DO UPDATE SET expires = excluded.expires, value = excluded.value",
		key, expires.Unix(), value)
	return err
}

func (s *SQLiteStore) Purge(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key)
	return err
}

func (s *SQLiteStore) PurgePrefix(ctx context.Context, prefix string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key LIKE ? ESCAPE '\\'", likePattern(prefix))
	return err
}

// likePattern escapes LIKE metacharacters in prefix and appends the
// wildcard, so a literal '%' in a cache key cannot widen the purge.
func likePattern(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+8)
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case '%', '_', '\\':
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, prefix[i])
	}
	return string(escaped) + "%"
}
