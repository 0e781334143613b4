package mysql

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/storage"
)

func TestMySQLMigrationProvider(t *testing.T) {
	provider := NewMySQLMigrationProvider()

	t.Run("GetSupportedEngine", func(t *testing.T) {
		require.Equal(t, "mysql", provider.GetSupportedEngine())
	})

	t.Run("NewMySQLMigrationProvider", func(t *testing.T) {
		require.NotNil(t, provider)
		require.Implements(t, (*storage.MigrationProvider)(nil), provider)
	})
}

func TestMySQLMigrationProviderErrors(t *testing.T) {
	provider := NewMySQLMigrationProvider()

	t.Run("InvalidDSN", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine: "mysql",
			URI:    "invalid-dsn",
		}

		err := provider.RunMigrations(context.Background(), config)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid mysql database dsn")
	})

	t.Run("InvalidDSN_GetCurrentVersion", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine: "mysql",
			URI:    "invalid-dsn",
		}

		_, err := provider.GetCurrentVersion(context.Background(), config)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid mysql database dsn")
	})

	t.Run("ConnectionFailure", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:  "mysql",
			URI:     "user:pass@tcp(nonexistent:3306)/merchantd",
			Timeout: 1 * time.Second,
		}

		err := provider.RunMigrations(context.Background(), config)
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to initialize mysql connection")
	})

	t.Run("ConnectionFailure_GetCurrentVersion", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:  "mysql",
			URI:     "user:pass@tcp(nonexistent:3306)/merchantd",
			Timeout: 1 * time.Second,
		}

		_, err := provider.GetCurrentVersion(context.Background(), config)
		require.Error(t, err)
		// The failure surfaces as a connection error or a resolver error
		// depending on the environment.
		errMsg := err.Error()
		require.True(t,
			strings.Contains(errMsg, "failed to open mysql connection") ||
				strings.Contains(errMsg, "dial tcp") ||
				strings.Contains(errMsg, "no such host") ||
				strings.Contains(errMsg, "connection refused") ||
				strings.Contains(errMsg, "server misbehaving"),
			"unexpected error message: %s", errMsg)
	})
}

func TestMySQLMigrationProviderPrepareURI(t *testing.T) {
	provider := NewMySQLMigrationProvider()

	t.Run("ValidDSN", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine: "mysql",
			URI:    "user:pass@tcp(localhost:3306)/merchantd",
		}

		uri, err := provider.prepareURI(config)
		require.NoError(t, err)
		require.Equal(t, "user:pass@tcp(localhost:3306)/merchantd", uri)
	})

	t.Run("DSNWithUsernameOverride", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:   "mysql",
			URI:      "user:pass@tcp(localhost:3306)/merchantd",
			Username: "migrator",
		}

		uri, err := provider.prepareURI(config)
		require.NoError(t, err)
		require.Equal(t, "migrator:pass@tcp(localhost:3306)/merchantd", uri)
	})

	t.Run("DSNWithPasswordOverride", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:   "mysql",
			URI:      "user:pass@tcp(localhost:3306)/merchantd",
			Password: "secret",
		}

		uri, err := provider.prepareURI(config)
		require.NoError(t, err)
		require.Equal(t, "user:secret@tcp(localhost:3306)/merchantd", uri)
	})

	t.Run("DSNWithBothOverrides", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine:   "mysql",
			URI:      "user:pass@tcp(localhost:3306)/merchantd",
			Username: "migrator",
			Password: "secret",
		}

		uri, err := provider.prepareURI(config)
		require.NoError(t, err)
		require.Equal(t, "migrator:secret@tcp(localhost:3306)/merchantd", uri)
	})

	t.Run("InvalidDSN", func(t *testing.T) {
		config := storage.MigrationConfig{
			Engine: "mysql",
			URI:    "invalid-dsn",
		}

		_, err := provider.prepareURI(config)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid mysql database dsn")
	})
}
