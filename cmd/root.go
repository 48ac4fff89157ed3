package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "instant-offer",
	Short: "Conversational buy-back pricing engine",
	Long:  "Identifies a seller's item through a bounded question dialogue, researches its market value across tiers, and computes an instant cash offer or routes it to manual review.",
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
