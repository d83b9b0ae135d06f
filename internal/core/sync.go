package core

// sync.go selects tables for a run and streams them.
//
// Selection works on table names with shell-style globs ("*", "C?E"). An
// explicit name without wildcards must match a registered table; a glob that
// matches nothing is ignored. Relations follow their parent unless the run
// asks to skip dependent tables, in which case only relations named
// explicitly are kept.

import (
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultSyncConcurrency is the number of top-level tables streamed in parallel.
const DefaultSyncConcurrency = 4

// FilterTables returns the tables selected by include/skip patterns.
// An empty include list selects every table. Order of all is preserved.
func FilterTables(all []*Table, include, skip []string, skipDependent bool) ([]*Table, error) {
	if len(include) == 0 {
		include = []string{"*"}
	}

	for _, pattern := range append(append([]string(nil), include...), skip...) {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("table pattern %q: %w", pattern, err)
		}
		if hasWildcard(pattern) {
			continue
		}
		if findTable(all, pattern) == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTable, pattern)
		}
	}

	var out []*Table
	for _, t := range all {
		if !matchAny(t.Name, include) || matchAny(t.Name, skip) {
			continue
		}
		out = append(out, filterRelations(t, include, skip, skipDependent))
	}
	return out, nil
}

// filterRelations returns t with its relation tree pruned. t itself is never
// modified; a copy is returned whenever relations change.
func filterRelations(t *Table, include, skip []string, skipDependent bool) *Table {
	if len(t.Relations) == 0 {
		return t
	}

	var rels []*Table
	for _, rel := range t.Relations {
		if matchAny(rel.Name, skip) {
			continue
		}
		if skipDependent && !namedExplicitly(rel.Name, include) {
			continue
		}
		rels = append(rels, filterRelations(rel, include, skip, skipDependent))
	}

	cp := *t
	cp.Relations = rels
	return &cp
}

// Sync streams every table into sink, running up to concurrency top-level
// tables at once. Relations are streamed after their parent finishes. The
// first error cancels the remaining work. Results are in the order of tables,
// each parent followed by its relations.
func Sync(ctx context.Context, tables []*Table, sink Sink, concurrency int) ([]TableResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultSyncConcurrency
	}

	results := make([][]TableResult, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, t := range tables {
		g.Go(func() error {
			res, err := streamTree(gctx, t, sink)
			results[i] = res
			return err
		})
	}

	err := g.Wait()

	var flat []TableResult
	for _, r := range results {
		flat = append(flat, r...)
	}
	return flat, err
}

// streamTree streams t and then, depth first, its relations.
func streamTree(ctx context.Context, t *Table, sink Sink) ([]TableResult, error) {
	n, err := t.Stream(ctx, sink)
	results := []TableResult{{Table: t.Name, Rows: n}}
	if err != nil {
		return results, err
	}

	for _, rel := range t.Relations {
		res, err := streamTree(ctx, rel, sink)
		results = append(results, res...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// flatten returns t and all of its relations, parents first.
func flatten(tables []*Table) []*Table {
	var out []*Table
	for _, t := range tables {
		out = append(out, t)
		out = append(out, flatten(t.Relations)...)
	}
	return out
}

func findTable(all []*Table, name string) *Table {
	for _, t := range flatten(all) {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func hasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

func matchAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

func namedExplicitly(name string, include []string) bool {
	for _, p := range include {
		if !hasWildcard(p) && p == name {
			return true
		}
	}
	return false
}
