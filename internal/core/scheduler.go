package core

// scheduler.go runs syncs on a fixed interval.
//
// The scheduler is long-running and context-aware for graceful shutdown. A
// failed run is logged and the next tick tries again; it never stops the
// application. A tick that cannot get a sync slot within the limiter's wait
// time is skipped.

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SchedulerConfig holds configuration for the sync scheduler.
type SchedulerConfig struct {
	Interval time.Duration // time between runs; must be positive
	Persist  bool          // write rows through the persister
	Options  SyncOptions
}

// StartSyncScheduler runs a sync immediately, then every cfg.Interval,
// until ctx is cancelled. It blocks; call it in its own goroutine.
func (s *Service) StartSyncScheduler(ctx context.Context, cfg SchedulerConfig) {
	if cfg.Interval <= 0 {
		slog.Warn("sync scheduler disabled: interval is not positive")
		return
	}

	slog.Info("sync scheduler started",
		"interval", cfg.Interval.String(),
		"persist", cfg.Persist,
	)

	s.runScheduledSync(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduledSync(ctx, cfg)
		}
	}
}

// runScheduledSync performs one scheduled run.
func (s *Service) runScheduledSync(ctx context.Context, cfg SchedulerConfig) {
	res, err := s.Sync(ctx, cfg.Options, nil, cfg.Persist)
	switch {
	case err == nil:
		slog.Debug("scheduled sync finished", "sync_id", res.SyncID, "rows", res.TotalRows())
	case errors.Is(err, context.Canceled):
		// shutting down
	case errors.Is(err, ErrTooManySyncs):
		slog.Warn("scheduled sync skipped: sync slots busy")
	default:
		slog.Error("scheduled sync failed", "error", err)
	}
}
