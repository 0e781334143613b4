// Package migrate runs datastore schema migrations for every supported
// storage engine through a shared provider registry.
package migrate

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/storage/mysql"
	"github.com/merchantd/merchantd/pkg/storage/postgres"
	"github.com/merchantd/merchantd/pkg/storage/sqlite"
)

// MigrationConfig contains the configuration needed for running migrations.
type MigrationConfig = storage.MigrationConfig

var (
	// defaultRegistry is the global migration provider registry.
	defaultRegistry *storage.MigratorRegistry
	registryOnce    sync.Once
)

func initDefaultRegistry() {
	registryOnce.Do(func() {
		defaultRegistry = storage.NewMigratorRegistry()

		defaultRegistry.RegisterProvider("postgres", postgres.NewPostgresMigrationProvider())
		defaultRegistry.RegisterProvider("mysql", mysql.NewMySQLMigrationProvider())
		defaultRegistry.RegisterProvider("sqlite", sqlite.NewSQLiteMigrationProvider())
	})
}

// GetDefaultRegistry returns the default migration provider registry.
func GetDefaultRegistry() *storage.MigratorRegistry {
	initDefaultRegistry()
	return defaultRegistry
}

// RegisterMigrationProvider registers a custom migration provider. Embedding
// applications call this before RunMigrations to override or extend the
// built-in engines.
func RegisterMigrationProvider(engine string, provider storage.MigrationProvider) {
	initDefaultRegistry()
	defaultRegistry.RegisterProvider(engine, provider)
}

// RunMigrationsWithProvider runs migrations using a specific migration provider.
func RunMigrationsWithProvider(provider storage.MigrationProvider, cfg storage.MigrationConfig) error {
	ctx := context.Background()
	return provider.RunMigrations(ctx, cfg)
}

// RunMigrationsWithRegistry runs migrations using a specific migration registry.
func RunMigrationsWithRegistry(registry *storage.MigratorRegistry, cfg storage.MigrationConfig) error {
	if cfg.Engine == "" {
		return fmt.Errorf("missing datastore engine type")
	}
	if cfg.Engine == "memory" {
		log.Println("no migrations to run for `memory` datastore")
		return nil
	}

	provider, exists := registry.GetProvider(cfg.Engine)
	if !exists {
		return fmt.Errorf("no migration provider registered for engine: %s", cfg.Engine)
	}

	ctx := context.Background()
	return provider.RunMigrations(ctx, cfg)
}

// RunMigrations runs the migrations for the given config using the default
// registry. TargetVersion zero migrates all the way up; any other value
// migrates up or down until the schema sits at exactly that version.
func RunMigrations(cfg storage.MigrationConfig) error {
	return RunMigrationsWithRegistry(GetDefaultRegistry(), cfg)
}
