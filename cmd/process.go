package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processCmd = &cobra.Command{
	Use:   "process <place_id>",
	Short: "Run extraction for one restaurant synchronously",
	Long:  "Claims the restaurant and runs classification, analysis, aggregation and persistence in the foreground. Restaurants already processing or finished are refused; use reset first to re-run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		placeID := args[0]

		env, err := initEnv(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		won, err := env.Store.ClaimForProcessing(ctx, placeID)
		if err != nil {
			return eris.Wrap(err, "process: claim")
		}
		if !won {
			r, err := env.Store.GetRestaurant(ctx, placeID)
			if err != nil {
				return eris.Wrap(err, "process: load restaurant")
			}
			return eris.Errorf("process: %s is %s", placeID, r.Status)
		}

		r, err := env.Store.GetRestaurant(ctx, placeID)
		if err != nil {
			return eris.Wrap(err, "process: load restaurant")
		}

		report, runErr := env.Processor.Process(ctx, *r)
		if report != nil {
			zap.L().Info("process: run finished",
				zap.String("place_id", placeID),
				zap.String("status", string(report.Status)),
				zap.Int("items", report.FinalItems),
				zap.String("cost", report.Usage.Cost.StringFixed(4)),
			)
			if err := printJSON(os.Stdout, report); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
