package commands

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/testutils"
)

func seedProduct(t *testing.T, ds storage.Datastore, category string) *model.Product {
	t.Helper()

	p := &model.Product{
		ID:         ulid.Make().String(),
		SKU:        "sku-" + testutils.CreateRandomString(10),
		Name:       "seeded product",
		Category:   category,
		PriceCents: 1950,
		Currency:   "USD",
		Stock:      10,
	}
	require.NoError(t, ds.CreateProduct(context.Background(), p))
	return p
}

func seedOrder(t *testing.T, ds storage.Datastore, status model.OrderStatus) *model.Order {
	t.Helper()

	o := &model.Order{
		ID:            ulid.Make().String(),
		Reference:     "ref-" + testutils.CreateRandomString(10),
		CustomerEmail: "buyer@example.com",
		Status:        status,
		TotalCents:    4200,
		Currency:      "USD",
	}
	require.NoError(t, ds.CreateOrder(context.Background(), o))
	return o
}

func newTestCache(t *testing.T) *cache.TieredCache {
	t.Helper()

	c := cache.NewTieredCache(nil)
	t.Cleanup(c.Close)
	return c
}

func drainProductIterator(t *testing.T, ctx context.Context, iter storage.Iterator[*model.Product]) []*model.Product {
	t.Helper()
	defer iter.Stop()

	var res []*model.Product
	for {
		p, err := iter.Next(ctx)
		if err != nil {
			require.ErrorIs(t, err, storage.ErrIteratorDone)
			break
		}
		res = append(res, p)
	}
	return res
}

func drainOrderIterator(t *testing.T, ctx context.Context, iter storage.Iterator[*model.Order]) []*model.Order {
	t.Helper()
	defer iter.Stop()

	var res []*model.Order
	for {
		o, err := iter.Next(ctx)
		if err != nil {
			require.ErrorIs(t, err, storage.ErrIteratorDone)
			break
		}
		res = append(res, o)
	}
	return res
}
