package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/model"
)

var triggerNoWait bool

var triggerCmd = &cobra.Command{
	Use:   "trigger <place_id>...",
	Short: "Triage and dispatch extraction for one or more restaurants",
	Long:  "Skips restaurants that are finished or already processing, claims the rest and runs them with the configured concurrency. Unknown place ids are created as pending.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		cands := make([]model.Candidate, len(args))
		for i, id := range args {
			cands[i] = model.Candidate{PlaceID: id}
		}

		res, err := env.Controller.Trigger(ctx, cands)
		if err != nil {
			return eris.Wrap(err, "trigger")
		}
		if err := printJSON(os.Stdout, res); err != nil {
			return err
		}

		if res.Dispatched && !triggerNoWait {
			zap.L().Info("waiting for dispatched runs", zap.Int("accepted", res.Accepted))
			env.Controller.Wait()
		}
		return nil
	},
}

func init() {
	triggerCmd.Flags().BoolVar(&triggerNoWait, "no-wait", false, "return after dispatch; in-flight runs are cancelled on exit")
	rootCmd.AddCommand(triggerCmd)
}
