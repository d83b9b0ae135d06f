// Package tables declares the tables this plugin exposes and registers them
// with the core registry.
package tables

import (
	"context"

	"github.com/JonMunkholm/nvdsync/internal/core"
	"github.com/JonMunkholm/nvdsync/internal/feed"
)

// Fetcher downloads feed records. *feed.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context) ([]feed.Record, error)
}

// RegisterAll registers every table with the core registry.
func RegisterAll(fetcher Fetcher, dates core.DateFormat) {
	core.Register(CVE(fetcher, dates))
}
