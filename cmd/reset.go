package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/model"
)

var resetStaleMins int

var resetCmd = &cobra.Command{
	Use:   "reset [place_id...]",
	Short: "Return restaurants to pending so they can be triggered again",
	Long:  "Sets the named restaurants to pending. With --stale-mins, also resets every restaurant whose processing claim has not been refreshed for that long.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && resetStaleMins <= 0 {
			return eris.New("reset: give place ids or --stale-mins")
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, id := range args {
			if err := st.UpdateStatus(ctx, id, model.StatusPending, ""); err != nil {
				return eris.Wrapf(err, "reset %s", id)
			}
			zap.L().Info("reset to pending", zap.String("place_id", id))
		}

		if resetStaleMins > 0 {
			n, err := st.ResetStale(ctx, time.Duration(resetStaleMins)*time.Minute)
			if err != nil {
				return eris.Wrap(err, "reset stale")
			}
			zap.L().Info("reset stale processing restaurants", zap.Int64("count", n))
		}
		return nil
	},
}

func init() {
	resetCmd.Flags().IntVar(&resetStaleMins, "stale-mins", 0, "reset restaurants processing for longer than N minutes")
	rootCmd.AddCommand(resetCmd)
}
