package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/monitoring"
)

var monitorOnce bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Check run health and send threshold alerts",
	Long:  "Collects run metrics over the lookback window and posts an alert to the webhook when the failure or degraded-check rate crosses its threshold. Loops until interrupted unless --once is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("monitor"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)

		if monitorOnce {
			snap, alerts := checker.Check(ctx)
			if snap == nil {
				return eris.New("monitor: metrics collection failed")
			}
			return writeJSON(os.Stdout, map[string]any{
				"snapshot": snap,
				"alerts":   alerts,
			})
		}

		checker.Run(ctx)
		return nil
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "run a single check and print the snapshot")
	rootCmd.AddCommand(monitorCmd)
}
