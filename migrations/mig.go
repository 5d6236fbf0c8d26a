package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed files/*.sql
var migrationFS embed.FS

// Up applies the embedded migrations. A nil log keeps goose's default
// stdout logger.
func Up(ctx context.Context, db *sql.DB, log goose.Logger) error {
	goose.SetBaseFS(migrationFS)
	if log != nil {
		goose.SetLogger(log)
	}
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "files"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
