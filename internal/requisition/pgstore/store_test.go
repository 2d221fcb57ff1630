package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/reqflow/internal/platform/db"
	"github.com/odyssey-erp/reqflow/internal/platform/migrations"
	"github.com/odyssey-erp/reqflow/internal/requisition"
	"github.com/odyssey-erp/reqflow/internal/requisition/storetest"
)

// The contract runs against a disposable database named by REQFLOW_TEST_PG_DSN.
func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("REQFLOW_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("REQFLOW_TEST_PG_DSN not set")
	}
	ctx := context.Background()

	sqlDB, err := migrations.OpenPostgres(dsn)
	require.NoError(t, err)
	require.NoError(t, migrations.Up(ctx, sqlDB, migrations.Postgres, nil))
	require.NoError(t, sqlDB.Close())

	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	storetest.Run(t, func(t *testing.T) requisition.Store {
		_, err := pool.Exec(ctx, `TRUNCATE requisitions`)
		require.NoError(t, err)
		return New(pool)
	})
}
