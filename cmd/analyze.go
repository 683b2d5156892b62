package main

import (
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aptlens/aptlens/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a transaction export and cache the dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.analyzer.Run(ctx, args[0])
		if err != nil {
			return err
		}

		stats := pipeline.Summarize(d.Rows)
		zap.L().Info("analysis complete",
			zap.String("hash", d.Manifest.Hash),
			zap.Int("rows", stats.Total),
			zap.Int("located", stats.Located),
		)

		fmt.Printf("dataset %s (%s)\n", d.Manifest.Hash, d.Manifest.Source)
		fmt.Printf("  rows:      %d\n", stats.Total)
		fmt.Printf("  located:   %d\n", stats.Located)
		fmt.Printf("  avg area:  %.2f\n", stats.AvgArea)
		fmt.Printf("  avg price: %.0f\n", stats.AvgPrice)

		fmt.Println("  by district:")
		for _, k := range sortedKeys(stats.ByDistrict) {
			fmt.Printf("    %-24s %d\n", k, stats.ByDistrict[k])
		}
		return nil
	},
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
