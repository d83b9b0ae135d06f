package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/nvdsync/internal/application"
	"github.com/JonMunkholm/nvdsync/internal/cli"
	"github.com/JonMunkholm/nvdsync/internal/config"
	"github.com/JonMunkholm/nvdsync/internal/logging"
)

func main() {
	// Environment wins over .env for the CLI
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand(open).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}

// open loads configuration, sets up logging on stderr and builds the app.
func open(ctx context.Context, opts *cli.RootOptions) (*application.App, error) {
	cfg, err := config.LoadWithSpec()
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if opts.Verbose {
		level = "debug"
	} else if level == "info" {
		level = "warn"
	}
	logging.SetupWriter(os.Stderr, level, cfg.Logging.Format)

	return application.New(ctx, cfg)
}
