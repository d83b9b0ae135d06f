package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/nvdsync/internal/core"
)

// selection holds the table selection flags shared by tables and sync.
type selection struct {
	tables        []string
	skipTables    []string
	skipDependent bool
}

func (s *selection) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&s.tables, "tables", nil, "tables to include (names or globs, default all)")
	cmd.Flags().StringSliceVar(&s.skipTables, "skip-tables", nil, "tables to exclude (names or globs)")
	cmd.Flags().BoolVar(&s.skipDependent, "skip-dependent-tables", false, "drop relations not named in --tables")
}

func (s *selection) options() core.SyncOptions {
	return core.SyncOptions{
		Tables:              s.tables,
		SkipTables:          s.skipTables,
		SkipDependentTables: s.skipDependent,
	}
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions, open Opener) *cobra.Command {
	var sel selection

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List table schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(cmd, rootOpts, open, sel.options())
		},
	}
	sel.bind(cmd)

	return cmd
}

func runTables(cmd *cobra.Command, rootOpts *RootOptions, open Opener, opts core.SyncOptions) error {
	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

	app, err := openApp(cmd, rootOpts, open)
	if err != nil {
		return err
	}
	defer app.Close()

	infos, err := app.Service.Tables(opts)
	if err != nil {
		return out.Failure(ExitCommandError, err, nil)
	}

	return out.Success(infos, func(w io.Writer) {
		writeTables(w, infos, 0)
	})
}

func writeTables(w io.Writer, infos []core.TableInfo, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, t := range infos {
		fmt.Fprintf(w, "%s%s", indent, t.Name)
		if t.Description != "" {
			fmt.Fprintf(w, " - %s", t.Description)
		}
		fmt.Fprintln(w)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "%s  COLUMN\tTYPE\tFLAGS\n", indent)
		for _, c := range t.Columns {
			fmt.Fprintf(tw, "%s  %s\t%s\t%s\n", indent, c.Name, c.Type, columnFlags(c))
		}
		tw.Flush()

		writeTables(w, t.Relations, depth+1)
	}
}

func columnFlags(c core.ColumnInfo) string {
	var flags []string
	if c.PrimaryKey {
		flags = append(flags, "pk")
	}
	if c.NotNull {
		flags = append(flags, "not null")
	}
	if c.Unique {
		flags = append(flags, "unique")
	}
	if c.IncrementalKey {
		flags = append(flags, "incremental")
	}
	return strings.Join(flags, ",")
}
