// Package storage provides bootstrapped datastore fixtures for tests.
package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/internal/build"
	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/storage/memory"
	"github.com/merchantd/merchantd/pkg/storage/sqlcommon"
	"github.com/merchantd/merchantd/pkg/storage/sqlite"
)

// DatastoreTestContainer represents a runnable fixture for testing specific datastore engines.
type DatastoreTestContainer interface {

	// GetConnectionURI returns a connection string to the datastore instance backing
	// the fixture.
	GetConnectionURI(includeCredentials bool) string

	// GetDatabaseSchemaVersion returns the last migration applied (e.g. 2) when the fixture was created.
	GetDatabaseSchemaVersion() int64

	GetUsername() string
	GetPassword() string
}

type memoryTestContainer struct{}

func (m memoryTestContainer) GetConnectionURI(includeCredentials bool) string {
	return ""
}

func (m memoryTestContainer) GetUsername() string {
	return ""
}

func (m memoryTestContainer) GetPassword() string {
	return ""
}

func (m memoryTestContainer) GetDatabaseSchemaVersion() int64 {
	return build.MinimumSupportedDatastoreSchemaRevision
}

// RunDatastoreTestContainer constructs and runs a specific DatastoreTestContainer for the provided
// datastore engine. If applicable, it also runs all existing database migrations.
// The resources used by the test engine will be cleaned up after the test has finished.
func RunDatastoreTestContainer(t testing.TB, engine string) DatastoreTestContainer {
	switch engine {
	case "sqlite":
		return NewSqliteTestContainer().RunSqliteTestDatabase(t)
	case "memory":
		return memoryTestContainer{}
	default:
		t.Fatalf("'%s' engine is not supported by RunDatastoreTestContainer", engine)
		return nil
	}
}

// MustBootstrapDatastore runs a datastore fixture for the engine and opens a
// Datastore against it.
func MustBootstrapDatastore(t testing.TB, engine string) storage.Datastore {
	testDatastore := RunDatastoreTestContainer(t, engine)

	uri := testDatastore.GetConnectionURI(true)

	var ds storage.Datastore
	var err error

	switch engine {
	case "memory":
		ds = memory.New()
	case "sqlite":
		ds, err = sqlite.New(uri, sqlcommon.NewConfig())
	default:
		t.Fatalf("'%s' is not a supported datastore engine", engine)
	}
	require.NoError(t, err)

	t.Cleanup(ds.Close)

	return ds
}
