package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/cutmassively/cutm/internal/db"
	"github.com/cutmassively/cutm/internal/ledger"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or the fragments of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd.Context(), "history", func(ctx context.Context, e *env) error {
				path := e.cfg.LedgerPath()
				if path == "" {
					return fmt.Errorf("run ledger is disabled (ledger_path = %q)", e.cfg.Ledger)
				}
				database, err := db.New(path, e.logger)
				if err != nil {
					return err
				}
				defer database.Close()

				repo := ledger.NewRepository(database.Conn())
				if len(args) == 1 {
					return printRun(ctx, e.out, repo, args[0])
				}
				return printRuns(ctx, e.out, repo, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", ledger.DefaultHistoryLimit, "number of runs to list")
	return cmd
}

func printRuns(ctx context.Context, w io.Writer, repo ledger.Repository, limit int) error {
	runs, err := repo.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tTOTAL\tREADY\tUPLOADED\tFAILED\tSOURCE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, humanize.Time(r.StartedAt), r.Status, r.Total, r.Ready, r.Uploaded, r.Failed, r.SourceVideo)
	}
	return tw.Flush()
}

func printRun(ctx context.Context, w io.Writer, repo ledger.Repository, id string) error {
	run, err := repo.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	frags, err := repo.ListFragments(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run %s (%s), started %s\n", run.ID, run.Status, run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Source: %s\n", run.SourceVideo)
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "Took: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tACTION\tOUTCOME\tFRAGMENT\tERROR")
	for _, f := range frags {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", f.Row, f.Action, f.Outcome, f.Name, f.Error)
	}
	return tw.Flush()
}
