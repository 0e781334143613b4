package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/internal/build"
	"github.com/merchantd/merchantd/pkg/storage"
)

func TestSQLiteMigrationProvider(t *testing.T) {
	provider := NewSQLiteMigrationProvider()

	t.Run("GetSupportedEngine", func(t *testing.T) {
		require.Equal(t, "sqlite", provider.GetSupportedEngine())
	})

	t.Run("NewSQLiteMigrationProvider", func(t *testing.T) {
		require.NotNil(t, provider)
		require.Implements(t, (*storage.MigrationProvider)(nil), provider)
	})

	t.Run("MigratesToHeadVersion", func(t *testing.T) {
		dir, err := os.MkdirTemp("", "merchantd-migrator-test")
		require.NoError(t, err)
		t.Cleanup(func() { _ = os.RemoveAll(dir) })

		config := storage.MigrationConfig{
			Engine:  "sqlite",
			URI:     filepath.Join(dir, "migrate.db"),
			Timeout: 5 * time.Second,
		}

		ctx := context.Background()
		require.NoError(t, provider.RunMigrations(ctx, config))

		version, err := provider.GetCurrentVersion(ctx, config)
		require.NoError(t, err)
		require.Equal(t, build.MinimumSupportedDatastoreSchemaRevision, version)
	})

	t.Run("ConnectionFailure", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:  "sqlite",
			URI:     "/invalid/path/that/does/not/exist/db.sqlite",
			Timeout: 1 * time.Second,
		}

		ctx := context.Background()
		err := provider.RunMigrations(ctx, config)
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to initialize sqlite connection")
	})

	t.Run("ConnectionFailure_GetCurrentVersion", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:  "sqlite",
			URI:     "/invalid/path/that/does/not/exist/db.sqlite",
			Timeout: 1 * time.Second,
		}

		ctx := context.Background()
		_, err := provider.GetCurrentVersion(ctx, config)
		require.Error(t, err)
		// The error could be either connection failure or database error.
		require.True(t,
			strings.Contains(err.Error(), "failed to open sqlite connection") ||
				strings.Contains(err.Error(), "unable to open database file"))
	})
}
