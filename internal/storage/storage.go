// Package storage opens the configured record store, runs its migrations
// and hands back a records.Repository plus the function that releases it.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/audiodesc/internal/migrations"
	"github.com/dmitrijs2005/audiodesc/internal/records"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
	DriverMemory   = "memory"
)

// CloseFunc releases the resources held by an opened store.
type CloseFunc func() error

// Drivers lists the accepted driver names.
func Drivers() []string {
	return []string{DriverSQLite, DriverPostgres, DriverBolt, DriverMemory}
}

// Open selects the record store by driver name. For sqlite and bolt the dsn
// is a file path (sqlite also accepts "file:" URIs); for postgres it is a
// pgx connection string. Memory ignores the dsn.
func Open(ctx context.Context, driver, dsn string) (records.Repository, CloseFunc, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite:
		db, err := openSQL(ctx, "sqlite", dsn, "sqlite3")
		if err != nil {
			return nil, nil, err
		}
		return records.NewSQLiteRepository(db), db.Close, nil

	case DriverPostgres, "pgx":
		db, err := openSQL(ctx, "pgx", dsn, "postgres")
		if err != nil {
			return nil, nil, err
		}
		return records.NewPostgresRepository(db), db.Close, nil

	case DriverBolt:
		if dsn == "" {
			return nil, nil, fmt.Errorf("storage: bolt requires a file path")
		}
		repo, err := records.OpenBoltRepository(dsn)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil

	case DriverMemory:
		return records.NewMemoryRepository(), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}

func openSQL(ctx context.Context, driverName, dsn, dialect string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage: %s requires a dsn", driverName)
	}
	if driverName == "sqlite" && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("storage: data dir: %w", err)
		}
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if driverName == "sqlite" {
		// one writer at a time; also keeps ":memory:" on a single connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := migrations.Up(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
