package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMigrationProvider struct {
	engine        string
	migrationsRun bool
}

func (m *fakeMigrationProvider) GetSupportedEngine() string {
	return m.engine
}

func (m *fakeMigrationProvider) RunMigrations(ctx context.Context, config MigrationConfig) error {
	m.migrationsRun = true
	return nil
}

func (m *fakeMigrationProvider) GetCurrentVersion(ctx context.Context, config MigrationConfig) (int64, error) {
	return 2, nil
}

func TestMigratorRegistry(t *testing.T) {
	t.Run("empty_registry_has_no_engines", func(t *testing.T) {
		registry := NewMigratorRegistry()
		require.NotNil(t, registry)
		require.Empty(t, registry.GetSupportedEngines())
	})

	t.Run("registered_provider_is_returned", func(t *testing.T) {
		registry := NewMigratorRegistry()
		provider := &fakeMigrationProvider{engine: "test-engine"}

		registry.RegisterProvider("test-engine", provider)

		retrieved, exists := registry.GetProvider("test-engine")
		require.True(t, exists)
		require.Equal(t, provider, retrieved)

		require.NoError(t, retrieved.RunMigrations(context.Background(), MigrationConfig{Engine: "test-engine"}))
		require.True(t, provider.migrationsRun)
	})

	t.Run("unknown_engine_reports_missing", func(t *testing.T) {
		registry := NewMigratorRegistry()

		provider, exists := registry.GetProvider("mssql")
		require.False(t, exists)
		require.Nil(t, provider)
	})

	t.Run("registering_twice_overrides", func(t *testing.T) {
		registry := NewMigratorRegistry()

		first := &fakeMigrationProvider{engine: "test-engine"}
		second := &fakeMigrationProvider{engine: "test-engine"}

		registry.RegisterProvider("test-engine", first)
		registry.RegisterProvider("test-engine", second)

		retrieved, exists := registry.GetProvider("test-engine")
		require.True(t, exists)
		require.Same(t, second, retrieved)
	})

	t.Run("supported_engines_lists_all", func(t *testing.T) {
		registry := NewMigratorRegistry()

		registry.RegisterProvider("engine1", &fakeMigrationProvider{engine: "engine1"})
		registry.RegisterProvider("engine2", &fakeMigrationProvider{engine: "engine2"})

		require.ElementsMatch(t, []string{"engine1", "engine2"}, registry.GetSupportedEngines())
	})
}
