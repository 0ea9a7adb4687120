// Package cli implements riskctl, the operator CLI for a riskproxy registry.
// Commands run registry operations directly against the store named by
// DATABASE_URL, through the same call surface the HTTP server uses.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	databaseURL string
	callerFlag  string
	jsonOutput  bool
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "riskctl",
	Short: "Operate a riskproxy address risk registry",
	Long: "Runs registry operations directly against the store. Uses --database-url or DATABASE_URL; " +
		"without either, commands run against a throwaway in-memory store.",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string (default $DATABASE_URL)")
	pf.StringVar(&callerFlag, "as", "", "account the command acts as (default $RISKCTL_AS)")
	pf.BoolVar(&jsonOutput, "json", false, "print results as JSON")
	pf.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
