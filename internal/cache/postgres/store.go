// Package postgres is the PostgreSQL cache backend, built on a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/nvdsync/internal/cache"
	"github.com/JonMunkholm/nvdsync/internal/core"
)

const backendName = "postgres"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cves (
    cve_id          TEXT PRIMARY KEY,
    description     TEXT,
    last_modified   TEXT,
    last_updated_at TEXT,
    last_touched    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_cves_last_touched ON cves (last_touched);
`

// clock_timestamp advances within a transaction; now() would not.
const upsertSQL = `
	INSERT INTO cves (cve_id, description, last_modified, last_updated_at, last_touched)
	VALUES ($1, $2, $3, $4, clock_timestamp())
	ON CONFLICT (cve_id) DO UPDATE SET
		description     = EXCLUDED.description,
		last_modified   = EXCLUDED.last_modified,
		last_updated_at = EXCLUDED.last_updated_at,
		last_touched    = clock_timestamp()
`

const selectColumns = `cve_id, description, last_modified, last_updated_at, last_touched`

func init() {
	cache.Register(backendName, func(ctx context.Context, cfg cache.Config) (cache.Store, error) {
		return Open(ctx, cfg)
	})
}

// Store is a cache.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open parses cfg.URL, applies the pool sizing and verifies the connection.
func Open(ctx context.Context, cfg cache.Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, persistErr("connect", "", errors.New("no connection URL configured"))
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, persistErr("connect", "", fmt.Errorf("parse url: %w", err))
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, persistErr("connect", "", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, persistErr("connect", "", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, persistErr("migrate", "", err)
	}

	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Backend returns "postgres".
func (s *Store) Backend() string { return backendName }

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return persistErr("ping", "", err)
	}
	return nil
}

// Upsert writes records one statement at a time on a connection acquired
// from the pool for the duration of the call.
func (s *Store) Upsert(ctx context.Context, records []cache.Record) (int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, persistErr("connect", "", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return 0, persistErr("migrate", "", err)
	}

	n := 0
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := conn.Exec(ctx, upsertSQL, r.CVEID, r.Description, r.LastModified, r.LastUpdatedAt); err != nil {
			return n, persistErr("upsert", r.CVEID, err)
		}
		n++
	}
	return n, nil
}

// Get returns the entry for cveID.
func (s *Store) Get(ctx context.Context, cveID string) (cache.Entry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM cves WHERE cve_id = $1`, cveID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return cache.Entry{}, fmt.Errorf("%s: %w", cveID, core.ErrNotFound)
	}
	if err != nil {
		return cache.Entry{}, persistErr("get", cveID, err)
	}
	return e, nil
}

// TouchedSince returns entries written at or after since, newest first.
func (s *Store) TouchedSince(ctx context.Context, since time.Time, limit int) ([]cache.Entry, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM cves
		WHERE last_touched >= $1
		ORDER BY last_touched DESC, cve_id
		LIMIT $2
	`, since, lim)
	if err != nil {
		return nil, persistErr("list", "", err)
	}
	defer rows.Close()

	var out []cache.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, persistErr("list", "", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list", "", err)
	}
	return out, nil
}

func scanEntry(row pgx.Row) (cache.Entry, error) {
	var e cache.Entry
	err := row.Scan(&e.CVEID, &e.Description, &e.LastModified, &e.LastUpdatedAt, &e.LastTouched)
	return e, err
}

// DatabaseName returns the database name from a connection URL, for logging.
func DatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

func persistErr(op, key string, err error) error {
	return &core.PersistenceError{Backend: backendName, Op: op, Key: key, Err: err}
}
