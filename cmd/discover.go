package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	discoverLimit     int
	discoverBatchSize int
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search for websites of businesses that have none on file",
	Long:  "Runs search plus the LLM judge over businesses with no URL. Each business gets at most one paid discovery attempt unless an operator orders a re-run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if discoverBatchSize > 0 {
			cfg.Validation.BatchSize = discoverBatchSize
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Runner.RunDiscovery(ctx, discoverLimit)
		if err != nil {
			return err
		}

		zap.L().Info("discover finished",
			zap.Int("processed", summary.Processed),
			zap.Int("valid", summary.Valid),
			zap.Int("no_website", summary.NoWebsite),
			zap.Int("review", summary.Review),
			zap.Int("skipped", summary.Skipped),
			zap.Int("errors", summary.Errors),
		)
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", -1, "max businesses to process (-1 = all)")
	discoverCmd.Flags().IntVar(&discoverBatchSize, "batch-size", 0, "batch size (default from config)")
	rootCmd.AddCommand(discoverCmd)
}
