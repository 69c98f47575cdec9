package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "pacan",
	Short: "Visitor attribution and experiment analytics engine",
	Long: `pacan tracks visitor identities across unreliable signals, assigns
A/B variants, computes conversion funnels from the raw event log and
reconciles revenue against the payment settlement ledger.

Running without a subcommand starts the server (same as 'pacan serve').`,
	RunE: runServe,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("PACAN_DB_PATH", "./pacan.db"), "database path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
