//go:build integration

// Package integration runs the ledger against a real PostgreSQL started by
// testcontainers, so row locks and the migrations are exercised for real.
package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/agrosupply/backend/internal/infrastructure/migration"
	"github.com/agrosupply/backend/internal/infrastructure/persistence"
	"github.com/agrosupply/backend/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	gormlogger "gorm.io/gorm/logger"
)

var (
	sharedContainer    testcontainers.Container
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string
)

// TestDB is a migrated connection to the shared container
type TestDB struct {
	*persistence.Database
	DSN string
	t   *testing.T
}

// NewTestDB connects to the shared PostgreSQL container, starting and
// migrating it on first use. Tables are truncated so each test starts empty.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	ctx := context.Background()
	if sharedContainer == nil {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("agrosupply_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "start postgres container")

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err, "container connection string")
		require.NoError(t, migration.UpFromFS(dsn, migrations.FS, zap.NewNop()), "apply migrations")

		sharedContainer = container
		sharedContainerDSN = dsn
	}

	level := gormlogger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = gormlogger.Info
	}
	db, err := persistence.Open(gormpostgres.Open(sharedContainerDSN),
		persistence.WithGormLogger(gormlogger.Default.LogMode(level)))
	require.NoError(t, err, "connect to postgres")

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)

	tdb := &TestDB{Database: db, DSN: sharedContainerDSN, t: t}
	tdb.CleanTables()
	t.Cleanup(func() { _ = db.Close() })
	return tdb
}

// CleanTables truncates every ledger table
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename != 'schema_migrations'
	`).Scan(&tables).Error
	require.NoError(tdb.t, err, "list tables")

	for _, table := range tables {
		require.NoError(tdb.t, tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %q CASCADE", table)).Error)
	}
}

// CleanupSharedContainer terminates the shared container; call it from TestMain
func CleanupSharedContainer() {
	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = sharedContainer.Terminate(ctx)
		sharedContainer = nil
		sharedContainerDSN = ""
	}
}
