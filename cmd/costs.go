package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/store"
)

var (
	costsPlace string
	costsHours int
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Roll up model token usage and cost by stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var filter store.CostFilter
		if costsPlace != "" {
			r, err := st.GetRestaurant(ctx, costsPlace)
			if err != nil {
				return eris.Wrap(err, "costs")
			}
			filter.RestaurantID = r.ID
		}
		if costsHours > 0 {
			filter.Since = time.Now().UTC().Add(-time.Duration(costsHours) * time.Hour)
		}

		stages, err := st.CostSummary(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "costs")
		}
		formatCosts(os.Stdout, stages)
		return nil
	},
}

func init() {
	costsCmd.Flags().StringVar(&costsPlace, "place", "", "limit to one restaurant by place id")
	costsCmd.Flags().IntVar(&costsHours, "hours", 0, "limit to the last N hours")
	rootCmd.AddCommand(costsCmd)
}

// formatCosts writes a per-stage cost table with a total row.
func formatCosts(out io.Writer, stages []model.CostSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tCALLS\tFAILED\tINPUT\tOUTPUT\tCOST")
	_, _ = fmt.Fprintln(w, "-----\t-----\t------\t-----\t------\t----")

	var total model.CostSummary
	for _, s := range stages {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t$%s\n",
			s.Stage, s.Calls, s.Failures, s.InputTokens, s.OutputTokens, s.Cost.StringFixed(4))
		total.Calls += s.Calls
		total.Failures += s.Failures
		total.InputTokens += s.InputTokens
		total.OutputTokens += s.OutputTokens
		total.Cost = total.Cost.Add(s.Cost)
	}
	_, _ = fmt.Fprintf(w, "total\t%d\t%d\t%d\t%d\t$%s\n",
		total.Calls, total.Failures, total.InputTokens, total.OutputTokens, total.Cost.StringFixed(4))
	_ = w.Flush()
}
