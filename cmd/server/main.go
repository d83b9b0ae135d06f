package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/nvdsync/internal/application"
	"github.com/JonMunkholm/nvdsync/internal/config"
	"github.com/JonMunkholm/nvdsync/internal/core"
	"github.com/JonMunkholm/nvdsync/internal/logging"
	"github.com/JonMunkholm/nvdsync/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.LoadWithSpec()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	app, err := application.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := web.NewServer(cfg, app.Service, app.Lookup)

	// Cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if cfg.Sync.Interval > 0 {
		go app.Service.StartSyncScheduler(jobCtx, core.SchedulerConfig{
			Interval: cfg.Sync.Interval,
			Persist:  app.Service.CanPersist(),
		})
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := app.Service.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for syncs to finish", "active", status.Active)
			if err := app.Service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("syncs did not finish in time", "error", err)
			} else {
				slog.Info("all syncs finished")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
