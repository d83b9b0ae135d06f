package core

// convert.go turns feed values into nullable text cells.
//
// Feed data is loosely structured: fields may be missing, blank, or carry
// timestamps in several layouts depending on the feed version. Everything
// resolves to pgtype.Text with Valid=false for missing/blank input, so the
// store writes SQL NULL for absent optional fields.

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// feedTimeLayouts are the timestamp layouts seen in the NVD feeds.
// Layouts without a zone are interpreted in the DateFormat location.
var feedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DateFormat controls how timestamp columns are rendered.
// The zero value passes feed values through unchanged.
type DateFormat struct {
	Layout   string         // Go time layout; empty keeps the raw feed text
	Location *time.Location // zone for output and for zone-less input; nil means UTC
}

// NewDateFormat builds a DateFormat from a layout and an IANA zone name.
func NewDateFormat(layout, zone string) (DateFormat, error) {
	f := DateFormat{Layout: layout, Location: time.UTC}
	if zone == "" {
		return f, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return DateFormat{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	f.Location = loc
	return f, nil
}

func (f DateFormat) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// Parse parses a feed timestamp. Returns false if no known layout matches.
func (f DateFormat) Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range feedTimeLayouts {
		t, err := time.ParseInLocation(layout, s, f.location())
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Format renders a feed timestamp with the configured layout.
// Unparseable input is returned trimmed but otherwise unchanged.
func (f DateFormat) Format(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || f.Layout == "" {
		return s
	}
	t, ok := f.Parse(s)
	if !ok {
		return s
	}
	return t.In(f.location()).Format(f.Layout)
}

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToText converts an arbitrary decoded JSON value to pgtype.Text.
// Strings are trimmed, scalars are formatted, and nested values are
// re-encoded as JSON.
func ToText(v any) pgtype.Text {
	switch x := v.(type) {
	case nil:
		return pgtype.Text{}
	case string:
		return ToPgText(x)
	case pgtype.Text:
		return x
	case fmt.Stringer:
		return ToPgText(x.String())
	case bool, float64, float32, int, int32, int64:
		return ToPgText(fmt.Sprint(x))
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return pgtype.Text{}
		}
		return ToPgText(string(b))
	}
}

// ResolveField looks up column on an untyped record.
// A missing field yields a null value rather than an error.
func ResolveField(column string, record map[string]any) pgtype.Text {
	v, ok := record[column]
	if !ok {
		return pgtype.Text{}
	}
	return ToText(v)
}

// FieldResolver returns a resolver that reads the named field from
// map-shaped items. It is the default for columns without a resolver.
func FieldResolver(column string) ColumnResolver {
	return func(item any) (pgtype.Text, error) {
		switch rec := item.(type) {
		case map[string]any:
			return ResolveField(column, rec), nil
		case map[string]string:
			return ToPgText(rec[column]), nil
		default:
			return pgtype.Text{}, fmt.Errorf("no field %q on item of type %T", column, item)
		}
	}
}

// Extract returns a resolver over a typed item. fn reads one field;
// blank results resolve to null.
func Extract[R any](fn func(R) string) ColumnResolver {
	return func(item any) (pgtype.Text, error) {
		rec, ok := item.(R)
		if !ok {
			var zero R
			return pgtype.Text{}, fmt.Errorf("unexpected item type %T, want %T", item, zero)
		}
		return ToPgText(fn(rec)), nil
	}
}

// ExtractDate is Extract for timestamp fields rendered through df.
func ExtractDate[R any](fn func(R) string, df DateFormat) ColumnResolver {
	return Extract(func(rec R) string {
		return df.Format(fn(rec))
	})
}

// PgTextToString returns the string value, or "" for NULL.
func PgTextToString(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}
