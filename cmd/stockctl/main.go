package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/config"
	"github.com/vikasavnish/stockmemo/internal/logger"
)

var (
	cfg   *config.Config
	sugar *zap.SugaredLogger

	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "stockctl",
	Short: "Inspect and migrate stock memo data",
	Long: `stockctl works against the same configuration as the server.

Examples:
  stockctl price 005930          # Latest price of Samsung Electronics
  stockctl local show --json     # Dump the offline dataset
  stockctl migrate --user <id>   # Copy the offline dataset to an account`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		cfg = config.Load()
		l, err := logger.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		sugar = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if sugar != nil {
			_ = sugar.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
