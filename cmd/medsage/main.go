package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hunterwarburton/medsage/internal/config"
	"github.com/hunterwarburton/medsage/internal/logger"
)

var (
	configPath string
	debug      bool
	cfg        *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "medsage",
	Short: "Medical diagnostic scoring and retrieval",
	Long: `medsage ranks likely conditions from symptoms and clinical images, and
searches the local medical corpora.

Available subcommands:
  serve    - Run the HTTP API and, when a token is set, the Telegram bot
  search   - Run one search and print the result page as JSON
  diagnose - Run one diagnostic case and print the response as JSON
  index    - Load the datasets and print their statistics`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadWithEnv(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if debug {
			cfg.Log.Debug = true
		}
		if cmd.Name() == serveCmd.Name() {
			logger.Init(cfg.Log.Debug)
		} else {
			logger.InitTo(cfg.Log.Debug, "stderr")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default $MEDSAGE_CONFIG or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, searchCmd, diagnoseCmd, indexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
