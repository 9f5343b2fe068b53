package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/config"
)

var (
	cfg *config.Config

	configPath string
	logLevel   string
	storeDSN   string
)

var rootCmd = &cobra.Command{
	Use:   "menu-cli",
	Short: "Restaurant menu extraction pipeline",
	Long:  "Classifies restaurant photos, extracts menu items from the menu photos with vision models, merges duplicates and stores one clean menu per restaurant.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyFlagOverrides(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ./config.yaml when present)")
	pf.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVar(&storeDSN, "store", "", "store override: a .db path selects sqlite, a postgres:// URL selects postgres")
}

// applyFlagOverrides lets explicitly set persistent flags win over file and
// environment settings.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("log-level") {
		c.Log.Level = logLevel
	}
	if cmd.Flags().Changed("store") {
		c.Store.DatabaseURL = storeDSN
		c.Store.Driver = "sqlite"
		if strings.HasPrefix(storeDSN, "postgres://") || strings.HasPrefix(storeDSN, "postgresql://") {
			c.Store.Driver = "postgres"
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
