package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thebtf/procluster/internal/config"
	"github.com/thebtf/procluster/internal/db/gorm"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewRunsCommand creates the runs command and its subcommands.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Long: `List runs stored by "run --db", "watch --db" or the HTTP server, newest first.

Example:
  procluster runs --limit 10
  procluster runs delete 3f0c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(opts, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite path or postgres:// DSN (default settings database)")
	cmd.Flags().IntVar(&opts.Limit, "limit", gorm.DefaultListLimit, "maximum number of runs to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteRun(opts, cmd, args[0])
		},
	})

	return cmd
}

func (o *RunsOptions) openRuns() (*gorm.RunStore, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dsn := firstNonEmpty(o.Database, cfg.Database)
	if dsn == "" {
		dsn = config.DBPath()
	}
	store, err := openStore(dsn)
	if err != nil {
		return nil, nil, err
	}
	return gorm.NewRunStore(store), func() { _ = store.Close() }, nil
}

func listRuns(opts *RunsOptions, cmd *cobra.Command) error {
	runs, closeStore, err := opts.openRuns()
	if err != nil {
		return err
	}
	defer closeStore()

	list, err := runs.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "list runs", err)
	}

	return opts.formatter(cmd).Success(list, func(w io.Writer) error {
		if len(list) == 0 {
			_, err := fmt.Fprintln(w, "no stored runs")
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tPROCEDURES\tCLUSTERS\tLINKAGE\tSELECTOR\tSOURCE")
		for _, r := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
				r.ID, time.Unix(r.CreatedAtEpoch, 0).Format(time.DateTime),
				r.Procedures, r.Clusters, r.Linkage, r.Selector, r.Source)
		}
		return tw.Flush()
	})
}

func deleteRun(opts *RunsOptions, cmd *cobra.Command, id string) error {
	runs, closeStore, err := opts.openRuns()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := runs.DeleteRun(cmd.Context(), id); err != nil {
		return WrapExitError(ExitFailure, "delete run", err)
	}
	return opts.formatter(cmd).Success(map[string]string{"deleted": id}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "deleted run %s\n", id)
		return err
	})
}
