// Package application assembles the runtime shared by the API server and the
// CLI: cache store, feed client, table registry and sync service.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/nvdsync/internal/cache"
	_ "github.com/JonMunkholm/nvdsync/internal/cache/mysql"    // register backend
	_ "github.com/JonMunkholm/nvdsync/internal/cache/postgres" // register backend
	_ "github.com/JonMunkholm/nvdsync/internal/cache/sqlite"   // register backend
	"github.com/JonMunkholm/nvdsync/internal/config"
	"github.com/JonMunkholm/nvdsync/internal/core"
	"github.com/JonMunkholm/nvdsync/internal/core/tables"
	"github.com/JonMunkholm/nvdsync/internal/feed"
)

// App holds the wired components. Store and Lookup are nil when no cache
// backend is configured.
type App struct {
	Config  *config.Config
	Feed    *feed.Client
	Service *core.Service
	Store   cache.Store
	Lookup  *cache.Lookup
}

// New opens the configured cache, builds the feed client and registers the
// tables, replacing anything already in the table registry.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	dates, err := core.NewDateFormat(cfg.Feed.DateLayout, cfg.Feed.Timezone)
	if err != nil {
		return nil, fmt.Errorf("date format: %w", err)
	}

	store, err := cache.Open(ctx, cache.Config{
		Backend:         strings.ToLower(cfg.Cache.Backend),
		URL:             cfg.Cache.URL,
		SQLitePath:      cfg.Cache.SQLitePath,
		MaxConns:        cfg.Cache.MaxConns,
		MinConns:        cfg.Cache.MinConns,
		ConnMaxLifetime: cfg.Cache.MaxConnLifetime,
		ConnMaxIdleTime: cfg.Cache.MaxConnIdleTime,
		LookupSize:      cfg.Cache.LookupSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	client := feed.NewClient(&feed.ClientConfig{
		URL:                cfg.Feed.URL,
		APIKey:             cfg.Feed.APIKey,
		Timeout:            cfg.Feed.Timeout,
		RateLimit:          cfg.Feed.RateLimit,
		RateBurst:          cfg.Feed.RateBurst,
		ResultsPerPage:     cfg.Feed.ResultsPerPage,
		LastModifiedWindow: cfg.Feed.LastModifiedWindow,
	})

	core.Clear()
	tables.RegisterAll(client, dates)

	app := &App{Config: cfg, Feed: client, Store: store}

	var persister core.Persister
	if store != nil {
		app.Lookup = cache.NewLookup(store, cfg.Cache.LookupSize)
		persister = cache.NewUpserter(store, app.Lookup, tables.CVETable)
		slog.Info("cache enabled", "backend", store.Backend(), "lookup_size", cfg.Cache.LookupSize)
	} else {
		slog.Info("cache disabled, syncs will not persist")
	}

	app.Service = core.NewService(persister, core.ServiceConfig{
		Defaults:      cfg.Sync.Options(),
		MaxConcurrent: cfg.Sync.MaxConcurrent,
		MaxWait:       cfg.Sync.MaxWaitTime,
		Timeout:       cfg.Sync.Timeout,
	})

	slog.Info("tables registered", "count", core.TableCount())
	return app, nil
}

// Close releases the cache store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
