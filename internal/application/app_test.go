package application

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/nvdsync/internal/config"
	"github.com/JonMunkholm/nvdsync/internal/core"
)

const feedBody = `{
  "timestamp": "2024-03-02T00:00:00.000",
  "vulnerabilities": [
    {"cve": {"id": "CVE-2024-0001", "lastModified": "2024-03-01T10:00:00.000",
             "descriptions": [{"lang": "en", "value": "first"}]}},
    {"cve": {"id": "CVE-2024-0002",
             "descriptions": [{"lang": "es", "value": "segundo"}]}}
  ]
}`

func testConfig(t *testing.T, feedURL, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		Feed: config.FeedConfig{
			URL:       feedURL,
			Timeout:   5 * time.Second,
			RateLimit: 100,
			RateBurst: 10,
			Timezone:  "UTC",
		},
		Cache: config.CacheConfig{
			Backend:    backend,
			SQLitePath: filepath.Join(t.TempDir(), "cache.db"),
			LookupSize: 8,
		},
		Sync: config.SyncConfig{Concurrency: 2, MaxConcurrent: 1, MaxWaitTime: time.Second, Timeout: time.Minute},
	}
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return bodyServer(t, feedBody)
}

func bodyServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_SyncPersistsToSQLite(t *testing.T) {
	t.Cleanup(core.Clear)
	srv := feedServer(t)

	app, err := New(context.Background(), testConfig(t, srv.URL, "sqlite"))
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Store)
	require.NotNil(t, app.Lookup)
	assert.True(t, app.Service.CanPersist())
	assert.Equal(t, 1, core.TableCount())

	res, err := app.Service.Sync(context.Background(), core.SyncOptions{}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalRows())

	e, err := app.Lookup.Get(context.Background(), "CVE-2024-0002")
	require.NoError(t, err)
	assert.Equal(t, "segundo", e.Description.String)
	assert.False(t, e.LastModified.Valid)
	assert.Equal(t, "2024-03-02T00:00:00.000", e.LastUpdatedAt.String)
}

func TestSync_FlatLegacyItemRoundTrips(t *testing.T) {
	t.Cleanup(core.Clear)
	srv := bodyServer(t, `{"result":{"CVE_Items":[
		{"cve_id":"CVE-2024-0001","description":"X","last_modified":"2024-01-01","last_updated_at":"2024-01-02"}
	]}}`)

	app, err := New(context.Background(), testConfig(t, srv.URL, "sqlite"))
	require.NoError(t, err)
	defer app.Close()
	ctx := context.Background()

	rows := core.NewRowCollector()
	res, err := app.Service.Sync(ctx, core.SyncOptions{}, rows, true)
	require.NoError(t, err)
	require.Equal(t, []core.TableResult{{Table: "CVE", Rows: 1, Persisted: 1}}, res.Tables)

	emitted := rows.Rows("CVE")
	require.Len(t, emitted, 1)
	assert.Equal(t, "CVE-2024-0001", emitted[0].String("cve_id"))

	first, err := app.Store.Get(ctx, "CVE-2024-0001")
	require.NoError(t, err)
	assert.Equal(t, "X", first.Description.String)
	assert.Equal(t, "2024-01-01", first.LastModified.String)
	assert.Equal(t, "2024-01-02", first.LastUpdatedAt.String)

	_, err = app.Service.Sync(ctx, core.SyncOptions{}, nil, true)
	require.NoError(t, err)

	second, err := app.Lookup.Get(ctx, "CVE-2024-0001")
	require.NoError(t, err)
	assert.Equal(t, first.Record, second.Record)
	assert.True(t, second.LastTouched.After(first.LastTouched),
		"last_touched did not advance: %v -> %v", first.LastTouched, second.LastTouched)
}

func TestNew_CacheDisabled(t *testing.T) {
	t.Cleanup(core.Clear)
	srv := feedServer(t)

	app, err := New(context.Background(), testConfig(t, srv.URL, "none"))
	require.NoError(t, err)

	assert.Nil(t, app.Store)
	assert.Nil(t, app.Lookup)
	assert.False(t, app.Service.CanPersist())
	assert.NoError(t, app.Close())

	_, err = app.Service.Sync(context.Background(), core.SyncOptions{}, nil, true)
	assert.ErrorIs(t, err, core.ErrPersistenceDisabled)
}

func TestNew_ReplacesRegistry(t *testing.T) {
	t.Cleanup(core.Clear)
	srv := feedServer(t)

	for i := 0; i < 2; i++ {
		app, err := New(context.Background(), testConfig(t, srv.URL, "none"))
		require.NoError(t, err)
		app.Close()
	}
	assert.Equal(t, 1, core.TableCount())
}

func TestNew_Errors(t *testing.T) {
	t.Cleanup(core.Clear)

	cfg := testConfig(t, "http://127.0.0.1:1", "oracle")
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "open cache")

	cfg = testConfig(t, "http://127.0.0.1:1", "none")
	cfg.Feed.Timezone = "Mars/Olympus"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "date format")
}
