package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/nvdsync/internal/core"
)

// syncOptions holds flags for the sync command.
type syncOptions struct {
	selection
	persist     bool
	concurrency int
	rows        bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions, open Opener) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the feed and stream the selected tables",
		Long: `Fetch the feed once per table, resolve every record into a row, and
optionally upsert the rows into the cache.

Rows are only written after every selected table streamed successfully;
a failed fetch or a record without a CVE ID writes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, open, opts)
		},
	}

	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "upsert rows into the configured cache")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "tables streamed in parallel (default from config)")
	cmd.Flags().BoolVar(&opts.rows, "rows", false, "write every row to stdout as JSON lines; the summary goes to stderr")

	return cmd
}

func runSync(cmd *cobra.Command, rootOpts *RootOptions, open Opener, opts *syncOptions) error {
	if opts.concurrency < 0 {
		return NewExitError(ExitCommandError, "--concurrency must be non-negative")
	}

	app, err := openApp(cmd, rootOpts, open)
	if err != nil {
		return err
	}
	defer app.Close()

	// With --rows, stdout carries the rows and the summary moves to stderr.
	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	var sink core.Sink
	if opts.rows {
		sink = newLineSink(cmd.OutOrStdout())
		out.Writer = cmd.ErrOrStderr()
	}

	so := opts.options()
	so.Concurrency = opts.concurrency

	result, err := app.Service.Sync(cmd.Context(), so, sink, opts.persist)
	if err != nil {
		if result == nil {
			return out.Failure(exitCodeFor(err), err, nil)
		}
		if out.Format == "text" {
			writeSyncResult(out.Writer, result)
		}
		return out.Failure(exitCodeFor(err), err, result)
	}

	return out.Success(result, func(w io.Writer) {
		writeSyncResult(w, result)
	})
}

// exitCodeFor separates bad invocations from failed runs.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownTable),
		errors.Is(err, core.ErrPersistenceDisabled),
		errors.Is(err, core.ErrTooManySyncs):
		return ExitCommandError
	default:
		return ExitFailure
	}
}

func writeSyncResult(w io.Writer, r *core.SyncResult) {
	fmt.Fprintf(w, "sync %s %s in %s\n", r.SyncID, r.Phase, r.Duration.Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS\tPERSISTED")
	for _, t := range r.Tables {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", t.Table, t.Rows, t.Persisted)
	}
	tw.Flush()
	if r.Error != "" {
		fmt.Fprintf(w, "error: %s\n", r.Error)
	}
}

// lineSink writes rows as JSON lines. Concurrent tables are serialized.
type lineSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineSink(w io.Writer) *lineSink {
	return &lineSink{enc: json.NewEncoder(w)}
}

func (s *lineSink) Write(_ context.Context, row core.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(row)
}
