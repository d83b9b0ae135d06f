package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSyncTimeout bounds a single sync run.
const DefaultSyncTimeout = 10 * time.Minute

// DefaultHistorySize is how many finished runs History keeps.
const DefaultHistorySize = 20

// Persister writes the rows of one table to durable storage and returns how
// many were written. Implementations stop at the first failure; rows written
// before it stay written.
type Persister interface {
	Persist(ctx context.Context, table string, rows []Row) (int, error)
}

// ServiceConfig configures a Service. Zero values select the defaults.
type ServiceConfig struct {
	Defaults      SyncOptions   // applied when a request leaves a field empty
	MaxConcurrent int           // concurrent sync runs
	MaxWait       time.Duration // how long a run waits for a slot
	Timeout       time.Duration // per-run deadline
	HistorySize   int
}

// Service runs syncs over the registered tables.
type Service struct {
	persister Persister
	limiter   *SyncLimiter
	defaults  SyncOptions
	timeout   time.Duration

	mu          sync.RWMutex
	history     []SyncResult // oldest first
	historySize int
}

// NewService creates a Service. persister may be nil, in which case syncs
// that ask for persistence fail with ErrPersistenceDisabled.
func NewService(persister Persister, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSyncTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	return &Service{
		persister:   persister,
		limiter:     NewSyncLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		defaults:    cfg.Defaults,
		timeout:     cfg.Timeout,
		historySize: cfg.HistorySize,
	}
}

// Limiter exposes the sync limiter for status reporting and shutdown draining.
func (s *Service) Limiter() *SyncLimiter {
	return s.limiter
}

// CanPersist reports whether a persister is configured.
func (s *Service) CanPersist() bool {
	return s.persister != nil
}

// Tables returns the schema of every table selected by opts.
func (s *Service) Tables(opts SyncOptions) ([]TableInfo, error) {
	opts = s.withDefaults(opts)
	tables, err := FilterTables(All(), opts.Tables, opts.SkipTables, opts.SkipDependentTables)
	if err != nil {
		return nil, err
	}

	infos := make([]TableInfo, len(tables))
	for i, t := range tables {
		infos[i] = t.Info()
	}
	return infos, nil
}

// Stream streams a single table into sink without persisting anything.
func (s *Service) Stream(ctx context.Context, name string, sink Sink) (int, error) {
	t, ok := Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t.Stream(ctx, sink)
}

// Sync streams the selected tables into sink (which may be nil) and, when
// persist is set, writes every streamed row through the persister once all
// tables streamed successfully. A failed or cancelled stream persists
// nothing. The returned result is also recorded in History, including on
// failure.
func (s *Service) Sync(ctx context.Context, opts SyncOptions, sink Sink, persist bool) (*SyncResult, error) {
	if persist && s.persister == nil {
		return nil, ErrPersistenceDisabled
	}

	opts = s.withDefaults(opts)
	tables, err := FilterTables(All(), opts.Tables, opts.SkipTables, opts.SkipDependentTables)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	syncID := uuid.New().String()
	ctx = ContextWithSyncID(ctx, syncID)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := slog.With("sync_id", syncID)
	result := &SyncResult{
		SyncID:    syncID,
		Phase:     PhaseStreaming,
		StartedAt: time.Now(),
	}

	var collector *RowCollector
	var sinks []Sink
	if sink != nil {
		sinks = append(sinks, sink)
	}
	if persist {
		collector = NewRowCollector()
		sinks = append(sinks, collector)
	}

	logger.Info("sync started", "tables", len(tables), "persist", persist, "concurrency", opts.Concurrency)

	result.Tables, err = Sync(ctx, tables, MultiSink(sinks...), opts.Concurrency)
	if err != nil {
		return s.finish(logger, result, err)
	}

	if persist {
		result.Phase = PhasePersisting
		for i := range result.Tables {
			tr := &result.Tables[i]
			rows := collector.Rows(tr.Table)
			if len(rows) == 0 {
				continue
			}
			n, err := s.persister.Persist(ctx, tr.Table, rows)
			tr.Persisted = n
			if err != nil {
				return s.finish(logger, result, err)
			}
		}
	}

	return s.finish(logger, result, nil)
}

// finish stamps the final phase, records the run, and returns it.
func (s *Service) finish(logger *slog.Logger, result *SyncResult, err error) (*SyncResult, error) {
	result.Duration = time.Since(result.StartedAt)

	switch {
	case err == nil:
		result.Phase = PhaseComplete
		logger.Info("sync complete",
			"rows", result.TotalRows(),
			"duration_ms", result.Duration.Milliseconds(),
		)
	case errors.Is(err, context.Canceled):
		result.Phase = PhaseCancelled
		result.Error = err.Error()
		logger.Warn("sync cancelled", "rows", result.TotalRows())
	default:
		result.Phase = PhaseFailed
		result.Error = err.Error()
		logger.Error("sync failed",
			"error", err,
			"rows", result.TotalRows(),
			"duration_ms", result.Duration.Milliseconds(),
		)
	}

	s.record(*result)
	return result, err
}

func (s *Service) record(r SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, r)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append([]SyncResult(nil), s.history[over:]...)
	}
}

// History returns recent sync results, newest first.
func (s *Service) History() []SyncResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SyncResult, len(s.history))
	for i, r := range s.history {
		out[len(s.history)-1-i] = r
	}
	return out
}

// withDefaults fills empty fields of opts from the service defaults.
func (s *Service) withDefaults(opts SyncOptions) SyncOptions {
	if len(opts.Tables) == 0 {
		opts.Tables = s.defaults.Tables
	}
	if len(opts.SkipTables) == 0 {
		opts.SkipTables = s.defaults.SkipTables
	}
	if !opts.SkipDependentTables {
		opts.SkipDependentTables = s.defaults.SkipDependentTables
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = s.defaults.Concurrency
	}
	return opts
}
