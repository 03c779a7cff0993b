package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent enrichment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		summaries, err := st.ListSummaries(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "runs: list summaries")
		}
		if len(summaries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tSTARTED\tDURATION\tPROCESSED\tUPDATED\tSKIPPED\tERRORS\tREJECTIONS\tSTATUS")
		for _, s := range summaries {
			status := "ok"
			if s.Failed {
				status = "failed"
				if s.HaltedAtPhase != "" {
					status = "halted@" + s.HaltedAtPhase
				}
			} else if s.Flags.DryRun {
				status = "dry-run"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				s.RunID,
				s.StartedAt.Local().Format(time.RFC3339),
				s.Duration().Round(time.Millisecond),
				s.Processed,
				s.Updated,
				s.SkippedCached+s.SkippedUnchanged,
				s.Errors,
				s.Rejections,
				status,
			)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
