package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sentitrade/config"
)

var rootCmd = &cobra.Command{
	Use:   "sentitrade",
	Short: "A sentiment-aware stock trading pipeline",
	Long: `Sentitrade ingests stock price bars and social media posts, computes
technical indicators, merges them with a likes-weighted sentiment signal, and
drives a long/short paper-trading loop from a price prediction model.

Subcommands:
  pipeline   ingest bars and posts, compute indicators, merge sentiment
  run        run the trading decision loop against the paper brokerage
  query      inspect or prune the stored tables
  serve      replay merged rows to TCP clients as JSON lines`,
}

var (
	cfgPath string
	envPath string
	verbose bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "f", "", "path to config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "path to dotenv secrets file (default ~/.secrets/.env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(cfgPath)
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
