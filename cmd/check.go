package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	checkFlags inputFlags
	checkNames []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run parallel compliance checks and print the aggregate report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		in, err := checkFlags.input(cmd.InOrStdin())
		if err != nil {
			return err
		}

		env, err := initAnalysis(ctx, "analysis")
		if err != nil {
			return err
		}
		defer env.Close()

		checks, err := env.Service.Checks(checkNames...)
		if err != nil {
			return err
		}

		report, err := env.Service.RunParallelChecks(ctx, in, checks)
		if err != nil {
			return eris.Wrap(err, "check")
		}

		zap.L().Info("checks complete",
			zap.String("run_id", report.RunID),
			zap.Float64("overall_score", report.OverallScore),
			zap.String("overall_status", string(report.OverallStatus)),
		)
		return writeJSON(os.Stdout, report)
	},
}

func init() {
	checkFlags.register(checkCmd)
	checkCmd.Flags().StringSliceVar(&checkNames, "checks", nil, "subset of catalog checks to run (default: all)")
	rootCmd.AddCommand(checkCmd)
}
