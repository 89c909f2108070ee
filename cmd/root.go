package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath  string // Path to the engine configuration YAML
	logLevel    string // Log verbosity level
	dsnOverride string // Overrides store.dsn from the configuration
	historyPath string // Query log CSV the transition model is learned from
	policyName  string // Overrides policy.name from the configuration
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "mvprefetch",
	Short: "Predictive materialized view prefetching",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up the flags shared by every subcommand
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "defaults.yaml", "Path to the engine configuration YAML")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&dsnOverride, "dsn", "", "PostgreSQL DSN, overrides store.dsn")
}

// addHistoryFlags registers the flags of commands that learn a transition model.
func addHistoryFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&historyPath, "history", "query_log.csv", "Query log CSV (timestamp,query_id)")
	cmd.Flags().StringVar(&policyName, "policy", "", "Prefetch policy, overrides policy.name (cost-gap, never)")
}
