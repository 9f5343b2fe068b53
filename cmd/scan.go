package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/menu-cli/internal/discovery"
	"github.com/sells-group/menu-cli/pkg/google"
)

var (
	scanLat    float64
	scanLng    float64
	scanRadius float64
	scanQuery  string
	scanLimit  int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover restaurants with Google Places and extract their menus",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		places := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
		scanner := discovery.NewScanner(env.Store, places, env.Controller, cfg.Google)

		res, err := scanner.Scan(ctx, discovery.ScanRequest{
			Latitude:     scanLat,
			Longitude:    scanLng,
			RadiusMeters: scanRadius,
			Query:        scanQuery,
			MaxResults:   scanLimit,
		})
		if err != nil {
			return err
		}
		env.Controller.Wait()
		return printJSON(os.Stdout, res)
	},
}

func init() {
	scanCmd.Flags().Float64Var(&scanLat, "lat", 0, "latitude of the search center")
	scanCmd.Flags().Float64Var(&scanLng, "lng", 0, "longitude of the search center")
	scanCmd.Flags().Float64Var(&scanRadius, "radius", 0, "search radius in meters (default from config)")
	scanCmd.Flags().StringVar(&scanQuery, "query", "", "text query instead of a nearby search")
	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "max places to return (default from config)")
	scanCmd.MarkFlagsRequiredTogether("lat", "lng")
	rootCmd.AddCommand(scanCmd)
}
