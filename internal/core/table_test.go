package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func cveColumns() []Column {
	return []Column{
		{Name: "cve_id", PrimaryKey: true},
		{Name: "description"},
		{Name: "last_modified"},
		{Name: "last_updated_at"},
	}
}

func TestNewTable_NormalizesPrimaryKey(t *testing.T) {
	tbl := NewTable("CVE", "", cveColumns(), nil)

	col, ok := tbl.Column("cve_id")
	if !ok {
		t.Fatal("cve_id column missing")
	}
	if !col.NotNull || !col.Unique {
		t.Errorf("primary key flags = notNull:%v unique:%v, want both true", col.NotNull, col.Unique)
	}

	if err := tbl.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if got := strings.Join(tbl.PrimaryKeys(), ","); got != "cve_id" {
		t.Errorf("PrimaryKeys() = %q", got)
	}
	if got := strings.Join(tbl.ColumnNames(), ","); got != "cve_id,description,last_modified,last_updated_at" {
		t.Errorf("ColumnNames() = %q", got)
	}
}

func TestTable_Validate(t *testing.T) {
	tests := []struct {
		name    string
		table   *Table
		wantErr string
	}{
		{
			name:    "empty name",
			table:   &Table{Columns: []Column{{Name: "a"}}},
			wantErr: "name is empty",
		},
		{
			name:    "no columns",
			table:   &Table{Name: "t"},
			wantErr: "no columns",
		},
		{
			name:    "duplicate column",
			table:   &Table{Name: "t", Columns: []Column{{Name: "a"}, {Name: "a"}}},
			wantErr: "duplicate column",
		},
		{
			name:    "primary key without flags",
			table:   &Table{Name: "t", Columns: []Column{{Name: "a", PrimaryKey: true}}},
			wantErr: "must be not null and unique",
		},
		{
			name: "bad relation",
			table: &Table{Name: "t", Columns: []Column{{Name: "a"}},
				Relations: []*Table{{Name: "child"}}},
			wantErr: "relation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTable_Info(t *testing.T) {
	tbl := NewTable("CVE", "vulns", cveColumns(), nil)
	tbl.Relations = []*Table{NewTable("CVE_refs", "", []Column{{Name: "url"}}, nil)}

	info := tbl.Info()
	if info.Name != "CVE" || len(info.Columns) != 4 || len(info.Relations) != 1 {
		t.Fatalf("Info() = %+v", info)
	}

	b, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"type":"text"`) {
		t.Errorf("column type not rendered by name: %s", b)
	}
}

func TestTable_ResolveRow(t *testing.T) {
	tbl := NewTable("CVE", "", cveColumns(), nil)

	t.Run("all fields", func(t *testing.T) {
		row, err := tbl.ResolveRow(map[string]any{
			"cve_id":          "CVE-2024-0001",
			"description":     "overflow",
			"last_modified":   "2024-03-01T10:15:30.123",
			"last_updated_at": "2024-03-02T00:00:00.000",
		})
		if err != nil {
			t.Fatalf("ResolveRow() error = %v", err)
		}
		if got := row.String("cve_id"); got != "CVE-2024-0001" {
			t.Errorf("cve_id = %q", got)
		}
		if len(row.Cells) != 4 {
			t.Errorf("cells = %d, want 4", len(row.Cells))
		}
	})

	t.Run("missing optional field is null", func(t *testing.T) {
		row, err := tbl.ResolveRow(map[string]any{"cve_id": "CVE-1"})
		if err != nil {
			t.Fatalf("ResolveRow() error = %v", err)
		}
		if row.Get("description").Valid {
			t.Error("description should be null")
		}
	})

	t.Run("missing key fails", func(t *testing.T) {
		_, err := tbl.ResolveRow(map[string]any{"description": "x"})
		var me *MappingError
		if !errors.As(err, &me) {
			t.Fatalf("expected MappingError, got %v", err)
		}
		if me.Column != "cve_id" || !errors.Is(err, ErrMissingValue) {
			t.Errorf("MappingError = %+v", me)
		}
	})

	t.Run("resolver error", func(t *testing.T) {
		boom := errors.New("boom")
		bad := NewTable("t", "", []Column{{Name: "a", Resolver: func(any) (pgtype.Text, error) {
			return pgtype.Text{}, boom
		}}}, nil)
		_, err := bad.ResolveRow(nil)
		if !errors.Is(err, boom) || !IsMappingError(err) {
			t.Errorf("expected wrapped MappingError, got %v", err)
		}
	})
}

func TestRow_MarshalJSON(t *testing.T) {
	row := Row{Table: "CVE", Cells: []Cell{
		{Column: "cve_id", Value: pgtype.Text{String: "CVE-1", Valid: true}},
		{Column: "description", Value: pgtype.Text{}},
		{Column: "last_modified", Value: pgtype.Text{String: `say "hi"`, Valid: true}},
	}}

	b, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"cve_id":"CVE-1","description":null,"last_modified":"say \"hi\""}`
	if string(b) != want {
		t.Errorf("MarshalJSON = %s, want %s", b, want)
	}
}
