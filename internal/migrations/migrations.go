// Package migrations embeds the goose migrations for the SQL record stores.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// goose keeps its base FS and dialect in package globals.
var mu sync.Mutex

// Up applies every pending migration for dialect ("sqlite3" or "postgres").
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	dir, err := dirFor(dialect)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

func dirFor(dialect string) (string, error) {
	switch dialect {
	case "sqlite3", "sqlite":
		return "sqlite", nil
	case "postgres", "pgx":
		return "postgres", nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
}
