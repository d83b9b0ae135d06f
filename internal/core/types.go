package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ColumnType is the declared type of a column.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeTimestamp
)

// String returns the lowercase type name used in schema listings.
func (t ColumnType) String() string {
	switch t {
	case TypeTimestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// MarshalText lets ColumnType render as its name in JSON.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a type name written by MarshalText.
func (t *ColumnType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "text":
		*t = TypeText
	case "timestamp":
		*t = TypeTimestamp
	default:
		return fmt.Errorf("unknown column type %q", b)
	}
	return nil
}

// ColumnResolver computes a single cell from one feed item.
// It must be pure: no I/O, no shared state, safe for concurrent use.
// A missing value is reported as pgtype.Text{Valid: false}, not as an error.
type ColumnResolver func(item any) (pgtype.Text, error)

// TableResolver produces the items of a table in feed order and hands each
// one to emit. It returns the first error from emit unchanged.
type TableResolver func(ctx context.Context, emit func(item any) error) error

// Column describes one column of a table.
type Column struct {
	Name           string
	Type           ColumnType
	Description    string
	PrimaryKey     bool
	NotNull        bool
	Unique         bool
	IncrementalKey bool

	// Resolver computes the cell. Nil falls back to FieldResolver(Name).
	Resolver ColumnResolver
}

// Table is the schema of one exposed dataset plus the resolver that fills it.
// Tables are built once and not modified afterwards.
type Table struct {
	Name        string
	Description string
	Columns     []Column
	Resolver    TableResolver

	// Relations are child tables streamed after this table completes.
	Relations []*Table
}

// Cell is one resolved column value.
type Cell struct {
	Column string
	Value  pgtype.Text
}

// Row is the typed output of resolving one feed item through a table's columns.
// Cells are in column declaration order.
type Row struct {
	Table string
	Cells []Cell
}

// ColumnInfo is the serializable description of a column.
type ColumnInfo struct {
	Name           string     `json:"name"`
	Type           ColumnType `json:"type"`
	Description    string     `json:"description,omitempty"`
	PrimaryKey     bool       `json:"primaryKey"`
	NotNull        bool       `json:"notNull"`
	Unique         bool       `json:"unique"`
	IncrementalKey bool       `json:"incrementalKey"`
}

// TableInfo is the serializable description of a table.
type TableInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Columns     []ColumnInfo `json:"columns"`
	Relations   []TableInfo  `json:"relations,omitempty"`
}

// SyncOptions selects which tables a sync run covers.
type SyncOptions struct {
	Tables              []string
	SkipTables          []string
	SkipDependentTables bool
	Concurrency         int
}

// SyncPhase indicates the current stage of a sync run.
type SyncPhase string

const (
	PhaseStarting   SyncPhase = "starting"
	PhaseStreaming  SyncPhase = "streaming"
	PhasePersisting SyncPhase = "persisting"
	PhaseComplete   SyncPhase = "complete"
	PhaseFailed     SyncPhase = "failed"
	PhaseCancelled  SyncPhase = "cancelled"
)

// TableResult is the outcome of one table within a sync run.
type TableResult struct {
	Table     string `json:"table"`
	Rows      int    `json:"rows"`
	Persisted int    `json:"persisted"`
}

// SyncResult contains the final result of a sync run.
type SyncResult struct {
	SyncID    string        `json:"syncId"`
	Phase     SyncPhase     `json:"phase"`
	Tables    []TableResult `json:"tables"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed or PhaseCancelled
}

// TotalRows returns the number of rows streamed across all tables.
func (r SyncResult) TotalRows() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Rows
	}
	return n
}
