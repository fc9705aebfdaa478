package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lexpilot",
	Short: "Legal document analysis orchestrator",
	Long:  "Runs IRAC analyses and parallel compliance checks over legal documents using a language model, streaming progress events and persisting run history.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
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

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
