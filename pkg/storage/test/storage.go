// Package test contains the datastore conformance suite. Every engine runs
// RunAllTests against a bootstrapped instance to prove it honors the
// storage.Datastore contract.
package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/storage"
)

func RunAllTests(t *testing.T, ds storage.Datastore) {
	t.Run("TestDatastoreIsReady", func(t *testing.T) {
		status, err := ds.IsReady(context.Background())
		require.NoError(t, err)
		require.True(t, status.IsReady)
	})

	// Products.
	t.Run("TestProductWriteAndRead", func(t *testing.T) { ProductWritingAndReadingTest(t, ds) })
	t.Run("TestProductPagination", func(t *testing.T) { ProductPaginationTest(t, ds) })
	t.Run("TestBulkUpdateProducts", func(t *testing.T) { BulkUpdateProductsTest(t, ds) })

	// Orders.
	t.Run("TestOrderWriteAndRead", func(t *testing.T) { OrderWritingAndReadingTest(t, ds) })
	t.Run("TestOrderPagination", func(t *testing.T) { OrderPaginationTest(t, ds) })
	t.Run("TestBulkUpdateOrders", func(t *testing.T) { BulkUpdateOrdersTest(t, ds) })

	// Shared cache tier. Engines without one run the local tier alone.
	t.Run("TestSharedCache", func(t *testing.T) {
		if ds.SharedCache() == nil {
			t.Skip("engine has no shared cache tier")
		}
		SharedCacheTest(t, ds.SharedCache())
	})
}
