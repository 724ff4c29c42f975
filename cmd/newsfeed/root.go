package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/logger"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "newsfeed",
	Short:         "Aggregate, deduplicate and rank IT operations news",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config %s:\n%w", configPath, err)
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		logger.Setup(loaded.Logging.Level, loaded.Logging.Format)
		cfg = loaded
		return nil
	},
}

// Execute runs the command selected on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/newsfeed.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, pollCmd, sourcesCmd)
}
