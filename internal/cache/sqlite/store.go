// Package sqlite is the embedded-file cache backend.
//
// last_touched is stamped by the store, not by SQLite: the database clock
// only has millisecond resolution. Stamps are UTC text with microseconds and
// strictly increase within one Store, so every write advances them even when
// two writes land in the same microsecond.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/nvdsync/internal/cache"
	"github.com/JonMunkholm/nvdsync/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added index on cves.last_touched
// 2 - last_touched widened from milliseconds to microseconds
const currentSchemaVersion = 2

const backendName = "sqlite"

// touchedLayout is fixed width so stamps sort lexically.
const touchedLayout = "2006-01-02T15:04:05.000000Z"

const upsertSQL = `
	INSERT INTO cves (cve_id, description, last_modified, last_updated_at, last_touched)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(cve_id) DO UPDATE SET
		description     = excluded.description,
		last_modified   = excluded.last_modified,
		last_updated_at = excluded.last_updated_at,
		last_touched    = excluded.last_touched`

const selectColumns = `cve_id, description, last_modified, last_updated_at, last_touched`

func init() {
	cache.Register(backendName, func(_ context.Context, cfg cache.Config) (cache.Store, error) {
		return Open(cfg.SQLitePath)
	})
}

// Store is a cache.Store backed by a SQLite file.
// Uses WAL mode for concurrent read access.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, persistErr("connect", "", errors.New("no database path configured"))
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, persistErr("connect", "", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, persistErr("connect", "", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, persistErr("connect", "", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, persistErr("migrate", "", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// touch returns the next last_touched stamp: the current time, or one
// microsecond past the previous stamp if the clock has not moved on.
func (s *Store) touch() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t.Format(touchedLayout)
}

// Backend returns "sqlite".
func (s *Store) Backend() string { return backendName }

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
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
		if _, err := conn.ExecContext(ctx, upsertSQL, r.CVEID, r.Description, r.LastModified, r.LastUpdatedAt, s.touch()); err != nil {
			return n, persistErr("upsert", r.CVEID, err)
		}
		n++
	}
	return n, nil
}

// Get returns the entry for cveID.
func (s *Store) Get(ctx context.Context, cveID string) (cache.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM cves WHERE cve_id = ?`, cveID)
	e, err := scanEntry(row)
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
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM cves
		WHERE last_touched >= ?
		ORDER BY last_touched DESC, cve_id
		LIMIT ?
	`, since.UTC().Format(touchedLayout), limit)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (cache.Entry, error) {
	var e cache.Entry
	var touched string
	if err := row.Scan(&e.CVEID, &e.Description, &e.LastModified, &e.LastUpdatedAt, &touched); err != nil {
		return cache.Entry{}, err
	}
	t, err := time.Parse(touchedLayout, touched)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("parse last_touched %q: %w", touched, err)
	}
	e.LastTouched = t
	return e, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the index that TouchedSince scans.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_cves_last_touched ON cves(last_touched)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

func persistErr(op, key string, err error) error {
	return &core.PersistenceError{Backend: backendName, Op: op, Key: key, Err: err}
}

// migrateToV2 pads millisecond stamps (SS.sssZ) to microseconds so old and
// new rows keep sorting together.
func migrateToV2(db *sql.DB) error {
	_, err := db.Exec(`
		UPDATE cves
		SET last_touched = substr(last_touched, 1, 23) || '000Z'
		WHERE length(last_touched) = 24`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}
