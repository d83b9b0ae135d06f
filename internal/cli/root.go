// Package cli implements the nvdsync command line.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/nvdsync/internal/application"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Opener builds the application a command runs against. The caller owns
// configuration loading and logging setup.
type Opener func(ctx context.Context, opts *RootOptions) (*application.App, error)

// NewRootCommand creates the root command for the nvdsync CLI.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "nvdsync",
		Short: "Sync the NVD CVE feed into a keyed cache",
		Long: `nvdsync fetches the NVD CVE feed, maps each record to a row of the CVE
table, and upserts the rows into the configured cache (postgres, mysql or
sqlite), stamping last_touched on every write.

Configuration comes from the environment (and a .env file); see SYNC_SPEC_FILE
for the YAML sync spec.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose (debug) logging on stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewTablesCommand(opts, open))
	cmd.AddCommand(NewSyncCommand(opts, open))
	cmd.AddCommand(NewGetCommand(opts, open))

	return cmd
}

// openApp runs open and maps its failure to a command error.
func openApp(cmd *cobra.Command, opts *RootOptions, open Opener) (*application.App, error) {
	app, err := open(cmd.Context(), opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "startup failed", err)
	}
	return app, nil
}
