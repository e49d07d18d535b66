package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/froyo-keystone/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		runID      string
		resourceID string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled runs",
		Long: `Show runs recorded in the journal. Without flags the most recent runs are
listed; --run shows the results and events of one run and --resource the
past results of one resource.`,
		Example: `  # Recent runs
  froyo-keystone history

  # One run in detail
  froyo-keystone history --run 4f1c...

  # Past results of one resource
  froyo-keystone history --resource "user[nova::Default]"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if settings.Journal.Path == "" {
				return fmt.Errorf("no journal configured: set journal.path in the settings file")
			}

			journal, err := stores.NewSQLiteStore(stores.Config{Path: settings.Journal.Path})
			if err != nil {
				return err
			}
			defer journal.Close()
			if err := journal.Init(ctx); err != nil {
				return err
			}
			if err := journal.Migrate(ctx); err != nil {
				return err
			}

			switch {
			case runID != "":
				run, err := journal.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				results, err := journal.ListResults(ctx, runID)
				if err != nil {
					return err
				}
				events, err := journal.GetEvents(ctx, runID, nil)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, map[string]interface{}{
						"run":     run,
						"results": results,
						"events":  events,
					})
				}
				printRunRecord(out, run, results, events)
				return nil

			case resourceID != "":
				results, err := journal.ResourceHistory(ctx, resourceID, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, results)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tOPERATION\tSTATE\tCOMPLETED\tERROR")
				for _, r := range results {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						r.RunID, r.Operation, r.State, r.CompletedAt.Format(time.RFC3339), deref(r.Error))
				}
				return tw.Flush()

			default:
				runs, err := journal.ListRuns(ctx, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, runs)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tSTATUS\tDRY RUN\tSTARTED\tTOTAL\tCHANGED\tFAILED")
				for _, r := range runs {
					changed := r.Summary.Created + r.Summary.Updated + r.Summary.Destroyed
					fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%d\t%d\t%d\n",
						r.ID, r.Status, r.DryRun, r.StartedAt.Format(time.RFC3339),
						r.Summary.Total, changed, r.Summary.Failed)
				}
				return tw.Flush()
			}
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show one run")
	cmd.Flags().StringVar(&resourceID, "resource", "", "show the history of one resource ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "max entries")

	return cmd
}

func printRunRecord(w io.Writer, run *stores.Run, results []*stores.ResourceResult, events []*stores.Event) {
	fmt.Fprintf(w, "Run %s: %s (dry run: %v)\n", run.ID, run.Status, run.DryRun)
	fmt.Fprintf(w, "Manifests: %s\n", run.Manifest)
	fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.Error != nil {
		fmt.Fprintf(w, "Error: %s\n", *run.Error)
	}

	if len(events) > 0 {
		fmt.Fprintln(w, "\nEvents:")
		for _, e := range events {
			fmt.Fprintf(w, "  %s %s %s\n", e.Timestamp.Format(time.RFC3339), e.Level, e.Message)
		}
	}

	fmt.Fprintln(w, "\nResults:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%dms\t%s\n", r.ResourceID, r.Operation, r.State, r.DurationMS, deref(r.Error))
	}
	_ = tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
