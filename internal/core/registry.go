package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]*Table)
	registryMu sync.RWMutex
)

// Register adds a table to the registry.
// Panics if the table is invalid or a table with the same name is already registered.
func Register(t *Table) {
	if err := t.Validate(); err != nil {
		panic(fmt.Sprintf("invalid table: %v", err))
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[t.Name]; exists {
		panic(fmt.Sprintf("table already registered: %s", t.Name))
	}
	registry[t.Name] = t
}

// Get returns a table by name.
// Returns false if not found.
func Get(name string) (*Table, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	t, ok := registry[name]
	return t, ok
}

// All returns all registered tables sorted by name.
func All() []*Table {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]*Table, 0, len(registry))
	for _, t := range registry {
		result = append(result, t)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// TableCount returns the number of registered tables.
func TableCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered tables.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]*Table)
}
