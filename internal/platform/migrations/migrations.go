// Package migrations applies the embedded schema with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Driver selects the schema flavour.
type Driver string

const (
	Postgres Driver = "postgres"
	SQLite   Driver = "sqlite"
)

func (d Driver) dialect() (goose.Dialect, error) {
	switch d {
	case Postgres:
		return goose.DialectPostgres, nil
	case SQLite:
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("platform/migrations: unknown driver %q", d)
	}
}

func newProvider(db *sql.DB, driver Driver) (*goose.Provider, error) {
	dialect, err := driver.dialect()
	if err != nil {
		return nil, err
	}
	fsys, err := fs.Sub(files, string(driver))
	if err != nil {
		return nil, fmt.Errorf("platform/migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("platform/migrations: new provider: %w", err)
	}
	return provider, nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, driver Driver, logger *slog.Logger) error {
	provider, err := newProvider(db, driver)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("platform/migrations: up: %w", err)
	}
	if logger != nil {
		for _, res := range results {
			logger.Info("migration applied",
				slog.String("driver", string(driver)),
				slog.String("source", res.Source.Path),
				slog.Duration("duration", res.Duration))
		}
	}
	return nil
}

// Version returns the current schema version.
func Version(ctx context.Context, db *sql.DB, driver Driver) (int64, error) {
	provider, err := newProvider(db, driver)
	if err != nil {
		return 0, err
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("platform/migrations: version: %w", err)
	}
	return version, nil
}

// OpenPostgres opens a database/sql handle on the pgx driver; goose needs one.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/migrations: open: %w", err)
	}
	return db, nil
}
