package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JonMunkholm/nvdsync/internal/metrics"
)

// Lookup is a read-through LRU in front of Store.Get. Entries are dropped
// when the Upserter writes the same key, so a hit never predates this
// process's own last write.
type Lookup struct {
	store Store
	cache *lru.Cache[string, Entry]

	// gen counts invalidations. A store read that overlapped one is not
	// cached, since it may hold the value from before the write.
	mu  sync.Mutex
	gen uint64
}

// NewLookup wraps store with an LRU of the given size. A size <= 0 returns a
// Lookup that always reads through.
func NewLookup(store Store, size int) *Lookup {
	l := &Lookup{store: store}
	if size > 0 {
		l.cache, _ = lru.New[string, Entry](size)
	}
	return l
}

// Get returns the entry for cveID, serving from the LRU when possible.
func (l *Lookup) Get(ctx context.Context, cveID string) (Entry, error) {
	if l.cache != nil {
		if e, ok := l.cache.Get(cveID); ok {
			metrics.LookupCache.WithLabelValues("hit").Inc()
			return e, nil
		}
	}
	metrics.LookupCache.WithLabelValues("miss").Inc()

	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()

	e, err := l.store.Get(ctx, cveID)
	if err != nil {
		return Entry{}, err
	}
	if l.cache != nil {
		l.mu.Lock()
		if l.gen == gen {
			l.cache.Add(cveID, e)
		}
		l.mu.Unlock()
	}
	return e, nil
}

// Store returns the store behind the lookup.
func (l *Lookup) Store() Store {
	return l.store
}

// Invalidate drops the given keys from the LRU.
func (l *Lookup) Invalidate(cveIDs ...string) {
	if l == nil || l.cache == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	for _, id := range cveIDs {
		l.cache.Remove(id)
	}
}

// Len returns the number of cached entries.
func (l *Lookup) Len() int {
	if l.cache == nil {
		return 0
	}
	return l.cache.Len()
}
