package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/nvdsync/internal/core"
	"github.com/JonMunkholm/nvdsync/internal/logging"
	"github.com/JonMunkholm/nvdsync/internal/metrics"
)

// Column names the upserter reads from CVE rows.
const (
	colCVEID         = "cve_id"
	colDescription   = "description"
	colLastModified  = "last_modified"
	colLastUpdatedAt = "last_updated_at"
)

// Upserter writes streamed CVE rows to a Store.
//
// It serves two roles: as a core.Persister it writes a finished batch, and
// as a core.Sink it buffers rows until Flush. Rows of tables other than the
// one it was built for are rejected.
type Upserter struct {
	store  Store
	lookup *Lookup
	table  string

	mu      sync.Mutex
	pending []core.Row
}

// NewUpserter creates an upserter for rows of table. lookup may be nil.
func NewUpserter(store Store, lookup *Lookup, table string) *Upserter {
	return &Upserter{store: store, lookup: lookup, table: table}
}

// Store returns the underlying store.
func (u *Upserter) Store() Store {
	return u.store
}

// Persist converts rows to records and upserts them in order.
func (u *Upserter) Persist(ctx context.Context, table string, rows []core.Row) (int, error) {
	if table != u.table {
		return 0, fmt.Errorf("%w: no cache mapping for %s", core.ErrUnknownTable, table)
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		rec, err := RecordFromRow(row)
		if err != nil {
			var me *core.MappingError
			if errors.As(err, &me) {
				me.Index = i
			}
			return 0, err
		}
		records[i] = rec
	}

	return u.Upsert(ctx, records)
}

// Upsert writes records through the store, recording metrics and dropping
// the touched keys from the lookup cache.
func (u *Upserter) Upsert(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	backend := u.store.Backend()
	logger := logging.WithFields(ctx, "backend", backend)
	start := time.Now()

	n, err := u.store.Upsert(ctx, records)

	metrics.UpsertDuration.WithLabelValues(backend).Observe(metrics.Milliseconds(start))
	metrics.Upserts.WithLabelValues(backend, "ok").Add(float64(n))

	// Invalidate everything attempted: the failing record may have been
	// applied before the error surfaced.
	attempted := n
	if err != nil && attempted < len(records) {
		attempted++
	}
	keys := make([]string, attempted)
	for i := 0; i < attempted; i++ {
		keys[i] = records[i].CVEID
	}
	u.lookup.Invalidate(keys...)

	if err != nil {
		metrics.Upserts.WithLabelValues(backend, "error").Inc()
		logger.Error("upsert failed", "error", err, "rows", n, "total", len(records))
		return n, err
	}

	logger.Info("upsert complete", "rows", n, "duration_ms", time.Since(start).Milliseconds())
	return n, nil
}

// Write buffers a row until Flush.
func (u *Upserter) Write(_ context.Context, row core.Row) error {
	if row.Table != u.table {
		return fmt.Errorf("%w: no cache mapping for %s", core.ErrUnknownTable, row.Table)
	}
	u.mu.Lock()
	u.pending = append(u.pending, row)
	u.mu.Unlock()
	return nil
}

// Flush persists the buffered rows and clears the buffer.
func (u *Upserter) Flush(ctx context.Context) (int, error) {
	u.mu.Lock()
	rows := u.pending
	u.pending = nil
	u.mu.Unlock()

	return u.Persist(ctx, u.table, rows)
}

// Discard drops the buffered rows without writing them.
func (u *Upserter) Discard() {
	u.mu.Lock()
	u.pending = nil
	u.mu.Unlock()
}

// RecordFromRow converts a CVE row to a Record. The key must be present.
func RecordFromRow(row core.Row) (Record, error) {
	id := row.Get(colCVEID)
	if !id.Valid {
		return Record{}, &core.MappingError{Table: row.Table, Column: colCVEID, Err: core.ErrMissingValue}
	}
	return Record{
		CVEID:         id.String,
		Description:   row.Get(colDescription),
		LastModified:  row.Get(colLastModified),
		LastUpdatedAt: row.Get(colLastUpdatedAt),
	}, nil
}
