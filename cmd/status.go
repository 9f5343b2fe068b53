package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/monitoring"
	"github.com/sells-group/menu-cli/internal/store"
)

var (
	statusPlace string
	statusHours int
	statusJSON  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show extraction status counts or one restaurant's status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if statusPlace != "" {
			r, err := st.GetRestaurant(ctx, statusPlace)
			if err != nil {
				return eris.Wrap(err, "status")
			}
			entry, err := st.GetQueueEntry(ctx, r.ID, model.TaskMenuExtraction)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return eris.Wrap(err, "status: queue entry")
			}
			return printJSON(os.Stdout, map[string]any{"restaurant": r, "queue": entry})
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, statusHours)
		if err != nil {
			return err
		}
		if statusJSON {
			return printJSON(os.Stdout, snap)
		}
		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusPlace, "place", "", "show a single restaurant by place id")
	statusCmd.Flags().IntVar(&statusHours, "hours", 24, "cost lookback window in hours (0 for all time)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

// formatSnapshot writes a status table followed by model call totals.
func formatSnapshot(out io.Writer, snap *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATUS\tCOUNT")
	_, _ = fmt.Fprintln(w, "------\t-----")
	for _, s := range model.AllStatuses() {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, snap.StatusCounts[s])
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", snap.Total)
	_ = w.Flush()

	window := "all time"
	if snap.LookbackHours > 0 {
		window = fmt.Sprintf("last %dh", snap.LookbackHours)
	}
	_, _ = fmt.Fprintf(out, "\nfailure rate: %.1f%%\n", snap.FailRate*100)
	_, _ = fmt.Fprintf(out, "model calls (%s): %d (%d failed), tokens in/out %d/%d, cost $%s\n",
		window, snap.Calls, snap.CallFailures, snap.InputTokens, snap.OutputTokens, snap.CostUSD.StringFixed(4))
}
