package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbd888/riskproxy/migrations"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|down|status|version|redo|up-to|down-to> [version]",
	Short: "Run the embedded database migrations",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dsn := databaseURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return fmt.Errorf("migrate needs --database-url or DATABASE_URL")
	}

	db, err := openDB(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Run(cmd.Context(), args[0], db, args[1:]...); err != nil {
		return err
	}
	return printResult(cmd, map[string]any{"command": args[0], "ok": true},
		fmt.Sprintf("migrate %s: done", args[0]))
}
