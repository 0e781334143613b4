package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/internal/build"
	"github.com/merchantd/merchantd/pkg/storage/migrate"
	"github.com/merchantd/merchantd/pkg/storage/sqlite"
)

func TestDefaultRegistryEngines(t *testing.T) {
	registry := migrate.GetDefaultRegistry()

	for _, engine := range []string{"postgres", "mysql", "sqlite"} {
		provider, ok := registry.GetProvider(engine)
		require.True(t, ok, "missing provider for %s", engine)
		require.Equal(t, engine, provider.GetSupportedEngine())
	}
}

func TestRunMigrationsMemoryIsNoop(t *testing.T) {
	err := migrate.RunMigrations(migrate.MigrationConfig{Engine: "memory"})
	require.NoError(t, err)
}

func TestRunMigrationsUnknownEngine(t *testing.T) {
	err := migrate.RunMigrations(migrate.MigrationConfig{Engine: "mssql"})
	require.ErrorContains(t, err, "no migration provider registered")
}

func TestSqliteMigrationRollbacks(t *testing.T) {
	dir, err := os.MkdirTemp("", "merchantd_migrate_test")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})

	uri := filepath.Join(dir, "merchantd.db")

	cfg := migrate.MigrationConfig{
		Engine:  "sqlite",
		URI:     uri,
		Timeout: 5 * time.Second,
	}

	err = migrate.RunMigrations(cfg)
	require.NoError(t, err)

	provider := sqlite.NewSQLiteMigrationProvider()
	version, err := provider.GetCurrentVersion(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, build.MinimumSupportedDatastoreSchemaRevision, version)

	// Walk the schema down one version at a time, then back up to head.
	for target := version - 1; target >= 1; target-- {
		t.Logf("migrating down to version %d", target)
		cfg.TargetVersion = uint(target)
		require.NoError(t, migrate.RunMigrations(cfg))

		current, err := provider.GetCurrentVersion(context.Background(), cfg)
		require.NoError(t, err)
		require.Equal(t, target, current)
	}

	cfg.TargetVersion = 0
	require.NoError(t, migrate.RunMigrations(cfg))

	current, err := provider.GetCurrentVersion(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, version, current)
}
