package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeFlags inputFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a sequential IRAC analysis of a document",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		in, err := analyzeFlags.input(cmd.InOrStdin())
		if err != nil {
			return err
		}

		env, err := initAnalysis(ctx, "analysis")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.RunSequentialAnalysis(ctx, in)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", res.RunID),
			zap.Int64("duration_ms", res.DurationMs),
			zap.Int("warnings", len(res.Warnings)),
		)
		return writeJSON(os.Stdout, res)
	},
}

func init() {
	analyzeFlags.register(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}
