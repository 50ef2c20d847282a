package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var validateLimit int

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check directory-supplied website URLs",
	Long:  "Runs the reachability checker over businesses that carry an unverified candidate URL. Dead URLs fall through to rediscovery in the same pass.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Runner.RunValidation(ctx, validateLimit)
		if err != nil {
			return err
		}

		zap.L().Info("validate finished",
			zap.Int("processed", summary.Processed),
			zap.Int("valid", summary.Valid),
			zap.Int("review", summary.Review),
			zap.Int("errors", summary.Errors),
		)
		return nil
	},
}

func init() {
	validateCmd.Flags().IntVar(&validateLimit, "limit", -1, "max businesses to process (-1 = all)")
	rootCmd.AddCommand(validateCmd)
}
