package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aptlens/aptlens/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "aptlens",
	Short: "Apartment transaction geocoding and search",
	Long:  "Parses ministry apartment transaction exports, attaches coordinates through a store cascade and the Kakao geocoder, and serves radius searches over the results.",
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
