package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pricelens/backend/internal/domain"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	bucket     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (bucket, key)
)`

// SQLiteStore persists buckets in a single SQLite table
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path with WAL and a busy timeout
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("kvstore: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}
	// One connection: ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("kvstore: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: ping: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE bucket = ? AND key = ?`, bucket, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s/%s: %w", bucket, key, err)
	}
	return v, nil
}

func (s *SQLiteStore) Set(ctx context.Context, bucket, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (bucket, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		bucket, key, value)
	if err != nil {
		return fmt.Errorf("kvstore: set %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, bucket, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE bucket = ? AND key = ?`, bucket, key); err != nil {
		return fmt.Errorf("kvstore: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE bucket = ?`, bucket)
	if err != nil {
		return nil, fmt.Errorf("kvstore: list %s: %w", bucket, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			k string
			v []byte
		)
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("kvstore: scan %s: %w", bucket, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteBucket(ctx context.Context, bucket string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE bucket = ?`, bucket); err != nil {
		return fmt.Errorf("kvstore: delete bucket %s: %w", bucket, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
