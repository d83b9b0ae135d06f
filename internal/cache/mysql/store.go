// Package mysql is the MySQL cache backend.
//
// The table keeps last_touched current with ON UPDATE CURRENT_TIMESTAMP(6),
// and the upsert also assigns it explicitly so that rewriting an identical
// record still counts as a touch.
//
// The upsert refers to the inserted row through an alias (INSERT ... AS new),
// which needs MySQL 8.0.19 or later.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/JonMunkholm/nvdsync/internal/cache"
	"github.com/JonMunkholm/nvdsync/internal/core"
)

const backendName = "mysql"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cves (
    cve_id          VARCHAR(255) NOT NULL PRIMARY KEY,
    description     TEXT,
    last_modified   VARCHAR(64),
    last_updated_at VARCHAR(64),
    last_touched    TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
    INDEX idx_cves_last_touched (last_touched)
)`

const upsertSQL = `
	INSERT INTO cves (cve_id, description, last_modified, last_updated_at)
	VALUES (?, ?, ?, ?) AS new
	ON DUPLICATE KEY UPDATE
		description     = new.description,
		last_modified   = new.last_modified,
		last_updated_at = new.last_updated_at,
		last_touched    = CURRENT_TIMESTAMP(6)
`

const selectColumns = `cve_id, description, last_modified, last_updated_at, last_touched`

func init() {
	cache.Register(backendName, func(ctx context.Context, cfg cache.Config) (cache.Store, error) {
		return Open(ctx, cfg)
	})
}

// Store is a cache.Store backed by MySQL.
type Store struct {
	db *sql.DB
}

// Open connects using a go-sql-driver DSN (user:pass@tcp(host:3306)/db).
// Times are read and written in UTC.
func Open(ctx context.Context, cfg cache.Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, persistErr("connect", "", errors.New("no DSN configured"))
	}

	dsn, err := driver.ParseDSN(cfg.URL)
	if err != nil {
		return nil, persistErr("connect", "", fmt.Errorf("parse dsn: %w", err))
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	if dsn.Params == nil {
		dsn.Params = make(map[string]string)
	}
	dsn.Params["time_zone"] = "'+00:00'"

	connector, err := driver.NewConnector(dsn)
	if err != nil {
		return nil, persistErr("connect", "", err)
	}
	db := sql.OpenDB(connector)

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, persistErr("connect", "", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, persistErr("migrate", "", err)
	}

	return &Store{db: db}, nil
}

// Backend returns "mysql".
func (s *Store) Backend() string { return backendName }

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return persistErr("ping", "", err)
	}
	return nil
}

// Upsert writes records one statement at a time on a dedicated connection.
func (s *Store) Upsert(ctx context.Context, records []cache.Record) (int, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, persistErr("connect", "", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return 0, persistErr("migrate", "", err)
	}

	n := 0
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := conn.ExecContext(ctx, upsertSQL, r.CVEID, r.Description, r.LastModified, r.LastUpdatedAt); err != nil {
			return n, persistErr("upsert", r.CVEID, err)
		}
		n++
	}
	return n, nil
}

// Get returns the entry for cveID.
func (s *Store) Get(ctx context.Context, cveID string) (cache.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM cves WHERE cve_id = ?`, cveID)
	var e cache.Entry
	err := row.Scan(&e.CVEID, &e.Description, &e.LastModified, &e.LastUpdatedAt, &e.LastTouched)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, fmt.Errorf("%s: %w", cveID, core.ErrNotFound)
	}
	if err != nil {
		return cache.Entry{}, persistErr("get", cveID, err)
	}
	return e, nil
}

// TouchedSince returns entries written at or after since, newest first.
func (s *Store) TouchedSince(ctx context.Context, since time.Time, limit int) ([]cache.Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM cves WHERE last_touched >= ? ORDER BY last_touched DESC, cve_id`
	args := []any{since.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("list", "", err)
	}
	defer rows.Close()

	var out []cache.Entry
	for rows.Next() {
		var e cache.Entry
		if err := rows.Scan(&e.CVEID, &e.Description, &e.LastModified, &e.LastUpdatedAt, &e.LastTouched); err != nil {
			return nil, persistErr("list", "", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list", "", err)
	}
	return out, nil
}

func persistErr(op, key string, err error) error {
	return &core.PersistenceError{Backend: backendName, Op: op, Key: key, Err: err}
}
