package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/reqflow/internal/auth"
	"github.com/odyssey-erp/reqflow/internal/platform/db"
	"github.com/odyssey-erp/reqflow/internal/platform/migrations"
	"github.com/odyssey-erp/reqflow/internal/requisition"
	"github.com/odyssey-erp/reqflow/internal/requisition/pgstore"
	"github.com/odyssey-erp/reqflow/internal/requisition/sqlitestore"
)

// Stores bundles the persistence backends selected by STORE_DRIVER. The
// schema is migrated before Stores is returned.
type Stores struct {
	Requisitions requisition.Store
	Users        auth.Repository

	schema *sql.DB
	driver migrations.Driver
	closer []func()
}

// OpenStores connects the configured backend.
func OpenStores(ctx context.Context, cfg *Config, logger *slog.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case DriverSQLite:
		store, err := sqlitestore.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Requisitions: store,
			Users:        auth.NewSQLiteRepository(store.DB()),
			schema:       store.DB(),
			driver:       migrations.SQLite,
			closer:       []func(){func() { _ = store.Close() }},
		}, nil
	case DriverPostgres:
		sqlDB, err := migrations.OpenPostgres(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.Up(ctx, sqlDB, migrations.Postgres, logger); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		pool, err := db.New(ctx, cfg.PGDSN, db.WithApplicationName("reqflow"))
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return &Stores{
			Requisitions: pgstore.New(pool),
			Users:        auth.NewPGRepository(pool),
			schema:       sqlDB,
			driver:       migrations.Postgres,
			closer:       []func(){pool.Close, func() { _ = sqlDB.Close() }},
		}, nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

// SchemaVersion reports the applied migration version.
func (s *Stores) SchemaVersion(ctx context.Context) (int64, error) {
	return migrations.Version(ctx, s.schema, s.driver)
}

// Close releases every connection.
func (s *Stores) Close() {
	if s == nil {
		return
	}
	for i := len(s.closer) - 1; i >= 0; i-- {
		s.closer[i]()
	}
}

// LoadWorkflow reads POLICY_FILE and applies SECOND_AUDITOR_ID on top of it.
func LoadWorkflow(cfg *Config) (*requisition.Workflow, error) {
	policy, err := requisition.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	if cfg.SecondAuditorID != "" {
		policy.SecondAuditorID = cfg.SecondAuditorID
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return requisition.NewWorkflow(policy), nil
}
