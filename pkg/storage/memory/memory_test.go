package memory

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/storage/test"
)

func TestMemoryDatastore(t *testing.T) {
	ds := New()
	test.RunAllTests(t, ds)
}

func TestConcurrentWritesNoRace(t *testing.T) {
	ds := New()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = ds.CreateProduct(ctx, &model.Product{
				ID:       ulid.Make().String(),
				SKU:      "A-" + ulid.Make().String(),
				Name:     "left",
				Currency: "USD",
			})
		}
	}()

	for i := 0; i < 50; i++ {
		_ = ds.CreateProduct(ctx, &model.Product{
			ID:       ulid.Make().String(),
			SKU:      "B-" + ulid.Make().String(),
			Name:     "right",
			Currency: "USD",
		})
	}
	<-done

	iter, err := ds.ReadProducts(ctx, storage.ProductFilter{}, storage.ReadOptions{})
	require.NoError(t, err)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next(ctx)
		if err != nil {
			break
		}
		count++
	}
	require.Equal(t, 100, count)
}
