package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePersister struct {
	mu   sync.Mutex
	rows map[string][]Row
	err  error
}

func (p *fakePersister) Persist(_ context.Context, table string, rows []Row) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	if p.rows == nil {
		p.rows = make(map[string][]Row)
	}
	p.rows[table] = append(p.rows[table], rows...)
	return len(rows), nil
}

func registerTestTables(t *testing.T, tables ...*Table) {
	t.Helper()
	Clear()
	for _, tbl := range tables {
		Register(tbl)
	}
	t.Cleanup(Clear)
}

func TestService_Tables(t *testing.T) {
	registerTestTables(t, itemsTable("A"), itemsTable("B"))
	svc := NewService(nil, ServiceConfig{})

	infos, err := svc.Tables(SyncOptions{})
	if err != nil || len(infos) != 2 {
		t.Fatalf("Tables() = %v, %v", infos, err)
	}

	infos, err = svc.Tables(SyncOptions{SkipTables: []string{"A"}})
	if err != nil || len(infos) != 1 || infos[0].Name != "B" {
		t.Errorf("Tables(skip A) = %v, %v", infos, err)
	}

	if _, err := svc.Tables(SyncOptions{Tables: []string{"Z"}}); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Tables(Z) error = %v, want ErrUnknownTable", err)
	}
}

func TestService_SyncPersists(t *testing.T) {
	registerTestTables(t, itemsTable("A", map[string]any{"id": "1"}, map[string]any{"id": "2"}))
	p := &fakePersister{}
	svc := NewService(p, ServiceConfig{})

	res, err := svc.Sync(context.Background(), SyncOptions{}, nil, true)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Phase != PhaseComplete || res.SyncID == "" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Tables) != 1 || res.Tables[0].Rows != 2 || res.Tables[0].Persisted != 2 {
		t.Errorf("tables = %+v", res.Tables)
	}
	if len(p.rows["A"]) != 2 {
		t.Errorf("persisted %d rows, want 2", len(p.rows["A"]))
	}
	if h := svc.History(); len(h) != 1 || h[0].SyncID != res.SyncID {
		t.Errorf("History() = %+v", h)
	}
}

func TestService_SyncFailureSkipsPersistence(t *testing.T) {
	registerTestTables(t, itemsTable("A", map[string]any{"id": "1"}, map[string]any{"note": "x"}))
	p := &fakePersister{}
	svc := NewService(p, ServiceConfig{})

	res, err := svc.Sync(context.Background(), SyncOptions{}, nil, true)
	if !IsMappingError(err) {
		t.Fatalf("Sync() error = %v, want MappingError", err)
	}
	if res.Phase != PhaseFailed || res.Error == "" {
		t.Errorf("result = %+v", res)
	}
	if len(p.rows) != 0 {
		t.Error("rows persisted after failed stream")
	}
}

func TestService_SyncPersistError(t *testing.T) {
	registerTestTables(t, itemsTable("A", map[string]any{"id": "1"}))
	p := &fakePersister{err: &PersistenceError{Backend: "sqlite", Op: "upsert", Err: errors.New("disk full")}}
	svc := NewService(p, ServiceConfig{})

	res, err := svc.Sync(context.Background(), SyncOptions{}, nil, true)
	if !IsPersistenceError(err) || res.Phase != PhaseFailed {
		t.Errorf("Sync() = %+v, %v", res, err)
	}
}

func TestService_SyncWithoutPersister(t *testing.T) {
	registerTestTables(t, itemsTable("A", map[string]any{"id": "1"}))
	svc := NewService(nil, ServiceConfig{})

	if _, err := svc.Sync(context.Background(), SyncOptions{}, nil, true); !errors.Is(err, ErrPersistenceDisabled) {
		t.Errorf("Sync(persist) error = %v, want ErrPersistenceDisabled", err)
	}

	collector := NewRowCollector()
	res, err := svc.Sync(context.Background(), SyncOptions{}, collector, false)
	if err != nil || res.TotalRows() != 1 || len(collector.Rows("A")) != 1 {
		t.Errorf("Sync() = %+v, %v", res, err)
	}
}

func TestService_SyncCancelled(t *testing.T) {
	registerTestTables(t, itemsTable("A", map[string]any{"id": "1"}))
	svc := NewService(nil, ServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Sync(ctx, SyncOptions{}, nil, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sync() error = %v, want context.Canceled", err)
	}
	if res != nil && res.Phase != PhaseCancelled {
		t.Errorf("phase = %s, want cancelled", res.Phase)
	}
}

func TestService_HistoryBounded(t *testing.T) {
	registerTestTables(t, itemsTable("A", map[string]any{"id": "1"}))
	svc := NewService(nil, ServiceConfig{HistorySize: 2})

	var last string
	for i := 0; i < 3; i++ {
		res, err := svc.Sync(context.Background(), SyncOptions{}, nil, false)
		if err != nil {
			t.Fatal(err)
		}
		last = res.SyncID
	}

	h := svc.History()
	if len(h) != 2 || h[0].SyncID != last {
		t.Errorf("History() len %d, newest %q; want 2, %q", len(h), h[0].SyncID, last)
	}
}

func TestService_Stream(t *testing.T) {
	registerTestTables(t, itemsTable("A", map[string]any{"id": "1"}))
	svc := NewService(nil, ServiceConfig{})

	n, err := svc.Stream(context.Background(), "A", NewRowCollector())
	if err != nil || n != 1 {
		t.Errorf("Stream(A) = %d, %v", n, err)
	}
	if _, err := svc.Stream(context.Background(), "Z", NewRowCollector()); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("Stream(Z) error = %v", err)
	}
}

func TestService_Scheduler(t *testing.T) {
	registerTestTables(t, itemsTable("A", map[string]any{"id": "1"}))
	svc := NewService(nil, ServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartSyncScheduler(ctx, SchedulerConfig{Interval: 20 * time.Millisecond})
		close(done)
	}()

	time.Sleep(70 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	if n := len(svc.History()); n < 2 {
		t.Errorf("scheduler ran %d times, want at least 2", n)
	}
}
