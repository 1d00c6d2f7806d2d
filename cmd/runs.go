package main

import (
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, runsLimit)
		if err != nil {
			return err
		}

		p := message.NewPrinter(language.English)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		p.Fprintln(w, "RUN ID\tSTATUS\tSTARTED\tCUSTOMERS\tCHURNED\tROLLUP ROWS\tEXCLUDED")
		for _, run := range runs {
			excluded := run.Counts.Audit.OrdersNoRevenue +
				run.Counts.Audit.OrdersNoSegment +
				run.Counts.Audit.OrdersNoTimestamp
			p.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Counts.Customers, run.Counts.Churned, run.Counts.RollupRows, excluded)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
