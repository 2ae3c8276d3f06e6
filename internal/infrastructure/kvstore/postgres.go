package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricelens/backend/internal/domain"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS pricelens_kv (
	bucket     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (bucket, key)
)`

// PostgresStore persists buckets in a shared Postgres table
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the table exists
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore: parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("kvstore: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kvstore: schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var v []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM pricelens_kv WHERE bucket = $1 AND key = $2`, bucket, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s/%s: %w", bucket, key, err)
	}
	return v, nil
}

func (s *PostgresStore) Set(ctx context.Context, bucket, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pricelens_kv (bucket, key, value, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (bucket, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		bucket, key, value)
	if err != nil {
		return fmt.Errorf("kvstore: set %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, bucket, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pricelens_kv WHERE bucket = $1 AND key = $2`, bucket, key); err != nil {
		return fmt.Errorf("kvstore: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM pricelens_kv WHERE bucket = $1`, bucket)
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

func (s *PostgresStore) DeleteBucket(ctx context.Context, bucket string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pricelens_kv WHERE bucket = $1`, bucket); err != nil {
		return fmt.Errorf("kvstore: delete bucket %s: %w", bucket, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
