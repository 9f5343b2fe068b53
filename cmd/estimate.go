package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var estimateDescription string

var estimateCmd = &cobra.Command{
	Use:   "estimate <dish name>",
	Short: "Estimate nutrition for a single dish with the vision provider",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("vision"); err != nil {
			return err
		}
		svc, err := initVision(cfg)
		if err != nil {
			return err
		}

		est, err := svc.Estimate(cmd.Context(), strings.Join(args, " "), estimateDescription)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, est)
	},
}

func init() {
	estimateCmd.Flags().StringVar(&estimateDescription, "description", "", "menu description of the dish")
	rootCmd.AddCommand(estimateCmd)
}
