package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// NewTable builds a table and normalizes column flags so that every primary
// key column is also NotNull and Unique.
func NewTable(name, description string, columns []Column, resolver TableResolver) *Table {
	cols := make([]Column, len(columns))
	copy(cols, columns)
	for i := range cols {
		if cols[i].PrimaryKey {
			cols[i].NotNull = true
			cols[i].Unique = true
		}
	}
	return &Table{
		Name:        name,
		Description: description,
		Columns:     cols,
		Resolver:    resolver,
	}
}

// Validate checks the structural invariants of the table and its relations.
func (t *Table) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		if col.Name == "" {
			return fmt.Errorf("table %s: column with empty name", t.Name)
		}
		if seen[col.Name] {
			return fmt.Errorf("table %s: duplicate column %q", t.Name, col.Name)
		}
		seen[col.Name] = true

		if col.PrimaryKey && (!col.NotNull || !col.Unique) {
			return fmt.Errorf("table %s: primary key column %q must be not null and unique", t.Name, col.Name)
		}
	}

	for _, rel := range t.Relations {
		if err := rel.Validate(); err != nil {
			return fmt.Errorf("table %s relation: %w", t.Name, err)
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// PrimaryKeys returns the names of the primary key columns.
func (t *Table) PrimaryKeys() []string {
	var keys []string
	for _, col := range t.Columns {
		if col.PrimaryKey {
			keys = append(keys, col.Name)
		}
	}
	return keys
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Info returns a serializable description of the table.
func (t *Table) Info() TableInfo {
	info := TableInfo{
		Name:        t.Name,
		Description: t.Description,
		Columns:     make([]ColumnInfo, len(t.Columns)),
	}
	for i, col := range t.Columns {
		info.Columns[i] = ColumnInfo{
			Name:           col.Name,
			Type:           col.Type,
			Description:    col.Description,
			PrimaryKey:     col.PrimaryKey,
			NotNull:        col.NotNull,
			Unique:         col.Unique,
			IncrementalKey: col.IncrementalKey,
		}
	}
	for _, rel := range t.Relations {
		info.Relations = append(info.Relations, rel.Info())
	}
	return info
}

// ResolveRow runs every column resolver against item and returns the row.
// Columns are independent of each other. A resolver error or a null value
// in a NotNull column fails the whole row with a MappingError.
func (t *Table) ResolveRow(item any) (Row, error) {
	row := Row{Table: t.Name, Cells: make([]Cell, len(t.Columns))}

	for i, col := range t.Columns {
		resolve := col.Resolver
		if resolve == nil {
			resolve = FieldResolver(col.Name)
		}

		v, err := resolve(item)
		if err != nil {
			return Row{}, &MappingError{Table: t.Name, Column: col.Name, Err: err}
		}
		if col.NotNull && !v.Valid {
			return Row{}, &MappingError{Table: t.Name, Column: col.Name, Err: ErrMissingValue}
		}

		row.Cells[i] = Cell{Column: col.Name, Value: v}
	}

	return row, nil
}

// Get returns the value of a column, or an invalid Text if the row has no such column.
func (r Row) Get(column string) pgtype.Text {
	for _, c := range r.Cells {
		if c.Column == column {
			return c.Value
		}
	}
	return pgtype.Text{}
}

// String returns the column value or "" when it is null.
func (r Row) String(column string) string {
	v := r.Get(column)
	if !v.Valid {
		return ""
	}
	return v.String
}

// MarshalJSON writes the row as an object with keys in column order.
// Null cells are written as JSON null.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Column)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if !c.Value.Valid {
			buf.WriteString("null")
			continue
		}
		val, err := json.Marshal(c.Value.String)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
