// Package migrations embeds the SQL schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

var setupOnce sync.Once

func setup() {
	setupOnce.Do(func() {
		goose.SetBaseFS(FS)
		goose.SetLogger(goose.NopLogger())
		_ = goose.SetDialect("postgres")
	})
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB) error {
	return Run(ctx, "up", db)
}

// Run executes a goose command ("up", "down", "status", "version", "redo",
// "up-to", "down-to", ...) against db.
func Run(ctx context.Context, command string, db *sql.DB, args ...string) error {
	setup()
	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}
