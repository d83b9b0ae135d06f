package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/nvdsync/internal/core"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "get <cve-id>",
		Short: "Show a cached CVE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

			app, err := openApp(cmd, rootOpts, open)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Lookup == nil {
				return out.Failure(ExitCommandError, core.ErrPersistenceDisabled, nil)
			}

			entry, err := app.Lookup.Get(cmd.Context(), args[0])
			if err != nil {
				code := ExitCommandError
				if errors.Is(err, core.ErrNotFound) {
					code = ExitFailure
				}
				return out.Failure(code, err, nil)
			}

			return out.Success(entry, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
				fmt.Fprintf(tw, "cve_id:\t%s\n", entry.CVEID)
				fmt.Fprintf(tw, "description:\t%s\n", orNull(entry.Description))
				fmt.Fprintf(tw, "last_modified:\t%s\n", orNull(entry.LastModified))
				fmt.Fprintf(tw, "last_updated_at:\t%s\n", orNull(entry.LastUpdatedAt))
				fmt.Fprintf(tw, "last_touched:\t%s\n", entry.LastTouched.UTC().Format(time.RFC3339Nano))
				tw.Flush()
			})
		},
	}
}

func orNull(t pgtype.Text) string {
	if !t.Valid {
		return "NULL"
	}
	return t.String
}
