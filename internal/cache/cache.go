// Package cache persists CVE rows in a keyed store with a last_touched
// timestamp that advances on every write.
//
// Backends live in subpackages and register themselves at init, the same way
// database/sql drivers do. Import the ones you need for side effects:
//
//	import _ "github.com/JonMunkholm/nvdsync/internal/cache/sqlite"
//
// Every backend implements the same write protocol: each Upsert call takes a
// dedicated connection, makes sure the table exists, writes one statement
// per record in order, and releases the connection on every exit path.
// Records written before a failure stay written.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// TableName is the name of the cache table in every backend.
const TableName = "cves"

// Record is one row to upsert, keyed on CVEID.
type Record struct {
	CVEID         string      `json:"cve_id"`
	Description   pgtype.Text `json:"description"`
	LastModified  pgtype.Text `json:"last_modified"`
	LastUpdatedAt pgtype.Text `json:"last_updated_at"`
}

// Entry is a stored record plus the time it was last written.
type Entry struct {
	Record
	LastTouched time.Time `json:"last_touched"`
}

// Store is a keyed CVE cache.
type Store interface {
	// Upsert inserts or updates each record in order and returns how many
	// were written. It stops at the first failure or when ctx is cancelled
	// between records.
	Upsert(ctx context.Context, records []Record) (int, error)

	// Get returns the entry for cveID, or core.ErrNotFound.
	Get(ctx context.Context, cveID string) (Entry, error)

	// TouchedSince returns entries written at or after since, most recent
	// first, at most limit of them (limit <= 0 means no limit).
	TouchedSince(ctx context.Context, since time.Time, limit int) ([]Entry, error)

	Ping(ctx context.Context) error
	Close() error

	// Backend names the implementation: "postgres", "mysql" or "sqlite".
	Backend() string
}

// Config selects and configures a backend.
type Config struct {
	Backend         string // registered backend name; "" or "none" disables the cache
	URL             string // connection string for network backends
	SQLitePath      string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LookupSize      int // entries in the read-through LRU; 0 disables it
}

// Driver opens a Store from configuration.
type Driver func(ctx context.Context, cfg Config) (Store, error)

var (
	drivers   = make(map[string]Driver)
	driversMu sync.RWMutex
)

// Register makes a backend available by the provided name.
// Panics if driver is nil or name is already registered.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if driver == nil {
		panic("cache: could not register nil Driver")
	}
	if _, dup := drivers[name]; dup {
		panic("cache: could not register duplicate Driver: " + name)
	}
	drivers[name] = driver
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the configured backend. It returns (nil, nil) when the cache is
// disabled.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Backend == "" || cfg.Backend == "none" {
		return nil, nil
	}

	driversMu.RLock()
	driver, ok := drivers[cfg.Backend]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("cache: unknown backend %q (forgotten import?)", cfg.Backend)
	}
	return driver(ctx, cfg)
}
