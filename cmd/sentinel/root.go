package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"LiquidSentinel/internal/config"
	"LiquidSentinel/internal/logger"
)

// app carries what every subcommand needs once the root has initialized.
type app struct {
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "LiquidSentinel - rate-limited Hyperliquid account monitor",
		Long: `LiquidSentinel tracks Hyperliquid accounts through the public info API.

All requests share one weight budget (1100 per minute by default) that
survives restarts, so the service, one-off CLI queries and restarts never
push the caller into 429 territory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.cfgPath == "" {
				a.cfgPath = "configs/config.yaml"
				if v := os.Getenv("CONFIG_PATH"); v != "" {
					a.cfgPath = v
				}
			}
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			l, err := logger.NewLogger(cfg.Logging.Env, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			a.cfg = cfg
			a.logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "Configuration file path (default configs/config.yaml or $CONFIG_PATH)")

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newFillsCmd(a))
	rootCmd.AddCommand(newBudgetCmd(a))
	return rootCmd
}
