package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/listenupapp/testimonials/internal/di/providers"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var (
		runID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show past import runs",
		Args:  cobra.NoArgs,
		RunE: ctx.run(func(cmd *cobra.Command, args []string) error {
			ledger, err := invoke[*providers.LedgerHandle](ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if runID != "" {
				r, err := ledger.GetRun(cmd.Context(), runID)
				if err != nil {
					return err
				}
				printRunReport(out, r)
				return nil
			}

			runs, err := ledger.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No import runs recorded.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.RunID,
					r.StartedAt.Local().Format(time.DateTime),
					r.Source,
					string(r.Status),
					strconv.Itoa(r.Fetched),
					strconv.Itoa(r.Imported),
					strconv.Itoa(r.Updated),
					strconv.Itoa(r.Duplicates),
					strconv.Itoa(r.FailedImports),
					r.Duration().Round(time.Millisecond).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Source", "Status", "Fetched", "Imported", "Updated", "Dupes", "Failed", "Took"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		}),
	}

	cmd.Flags().StringVar(&runID, "run", "", "Show one run with its itemized errors")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent runs to list")
	return cmd
}
