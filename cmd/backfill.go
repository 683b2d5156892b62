package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var backfillLimit int

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Geocode stored complexes that still lack coordinates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		limit := backfillLimit
		if limit <= 0 {
			limit = cfg.Analyze.BackfillSize
		}
		stats, err := env.backfiller.Run(ctx, limit)
		if err != nil {
			return err
		}

		fmt.Printf("scanned %d, updated %d, unresolved %d\n",
			stats.Scanned, stats.Updated, stats.Unresolved)
		return nil
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "max entities to process (default from config)")
	rootCmd.AddCommand(backfillCmd)
}
