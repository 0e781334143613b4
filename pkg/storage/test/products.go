package test

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/testutils"
)

// newProduct builds a product with a fresh ULID id. Ids issued by ulid.Make
// are strictly increasing within the process, so creation order is id order.
func newProduct(category string) *model.Product {
	return &model.Product{
		ID:          ulid.Make().String(),
		SKU:         "SKU-" + testutils.CreateRandomString(12),
		Name:        "product " + testutils.CreateRandomString(6),
		Description: "conformance fixture",
		Category:    category,
		PriceCents:  1999,
		Currency:    "USD",
		Stock:       25,
	}
}

func mustCreateProducts(t *testing.T, ds storage.Datastore, category string, n int) []*model.Product {
	t.Helper()

	products := make([]*model.Product, 0, n)
	for i := 0; i < n; i++ {
		p := newProduct(category)
		require.NoError(t, ds.CreateProduct(context.Background(), p))
		products = append(products, p)
	}

	return products
}

func drainProducts(t *testing.T, ctx context.Context, iter storage.Iterator[*model.Product]) []*model.Product {
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

func productIDs(products []*model.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func ProductWritingAndReadingTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	t.Run("create_and_get_round_trip", func(t *testing.T) {
		p := newProduct("roundtrip-" + testutils.CreateRandomString(8))
		require.NoError(t, ds.CreateProduct(ctx, p))
		require.False(t, p.CreatedAt.IsZero())
		require.Equal(t, p.CreatedAt, p.UpdatedAt)

		got, err := ds.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, p.ID, got.ID)
		require.Equal(t, p.SKU, got.SKU)
		require.Equal(t, p.Name, got.Name)
		require.Equal(t, p.Category, got.Category)
		require.Equal(t, p.PriceCents, got.PriceCents)
		require.Equal(t, p.Currency, got.Currency)
		require.Equal(t, p.Stock, got.Stock)
	})

	t.Run("inserting_product_twice_fails", func(t *testing.T) {
		p := newProduct("")
		require.NoError(t, ds.CreateProduct(ctx, p))

		err := ds.CreateProduct(ctx, p)
		require.ErrorIs(t, err, storage.ErrCollision)
	})

	t.Run("inserting_duplicate_sku_fails", func(t *testing.T) {
		p := newProduct("")
		require.NoError(t, ds.CreateProduct(ctx, p))

		dup := newProduct("")
		dup.SKU = p.SKU
		err := ds.CreateProduct(ctx, dup)
		require.ErrorIs(t, err, storage.ErrCollision)
	})

	t.Run("get_non-existent_product_returns_not_found", func(t *testing.T) {
		_, err := ds.GetProduct(ctx, ulid.Make().String())
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("update_applies_only_present_fields", func(t *testing.T) {
		p := newProduct("stable-category")
		require.NoError(t, ds.CreateProduct(ctx, p))

		price := int64(2599)
		stock := int64(7)
		updated, err := ds.UpdateProduct(ctx, &model.ProductPatch{
			ID:         p.ID,
			PriceCents: &price,
			Stock:      &stock,
		})
		require.NoError(t, err)

		require.Equal(t, price, updated.PriceCents)
		require.Equal(t, stock, updated.Stock)
		require.Equal(t, p.Name, updated.Name)
		require.Equal(t, p.SKU, updated.SKU)
		require.Equal(t, p.Category, updated.Category)
		require.False(t, updated.UpdatedAt.Before(p.UpdatedAt))

		got, err := ds.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, price, got.PriceCents)
		require.Equal(t, stock, got.Stock)
	})

	t.Run("update_without_changes_is_invalid", func(t *testing.T) {
		p := newProduct("")
		require.NoError(t, ds.CreateProduct(ctx, p))

		_, err := ds.UpdateProduct(ctx, &model.ProductPatch{ID: p.ID})
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("update_non-existent_product_returns_not_found", func(t *testing.T) {
		name := "renamed"
		_, err := ds.UpdateProduct(ctx, &model.ProductPatch{
			ID:   ulid.Make().String(),
			Name: &name,
		})
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("delete_product_succeeds", func(t *testing.T) {
		p := newProduct("")
		require.NoError(t, ds.CreateProduct(ctx, p))

		require.NoError(t, ds.DeleteProduct(ctx, p.ID))

		_, err := ds.GetProduct(ctx, p.ID)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("delete_non-existent_product_returns_not_found", func(t *testing.T) {
		err := ds.DeleteProduct(ctx, ulid.Make().String())
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("read_products_filters_by_category", func(t *testing.T) {
		category := "filter-" + testutils.CreateRandomString(8)
		created := mustCreateProducts(t, ds, category, 3)
		mustCreateProducts(t, ds, "other-"+testutils.CreateRandomString(8), 2)

		iter, err := ds.ReadProducts(ctx, storage.ProductFilter{Category: category}, storage.ReadOptions{})
		require.NoError(t, err)

		got := drainProducts(t, ctx, iter)
		require.Equal(t, productIDs(created), productIDs(got))
	})

	t.Run("read_products_descending_reverses_order", func(t *testing.T) {
		category := "desc-" + testutils.CreateRandomString(8)
		created := mustCreateProducts(t, ds, category, 4)

		iter, err := ds.ReadProducts(ctx, storage.ProductFilter{Category: category}, storage.ReadOptions{SortDescending: true})
		require.NoError(t, err)

		got := drainProducts(t, ctx, iter)
		require.Len(t, got, 4)
		for i, p := range got {
			require.Equal(t, created[len(created)-1-i].ID, p.ID)
		}
	})

	t.Run("read_products_surfaces_context_cancellation", func(t *testing.T) {
		category := "cancel-" + testutils.CreateRandomString(8)
		mustCreateProducts(t, ds, category, 2)

		iter, err := ds.ReadProducts(ctx, storage.ProductFilter{Category: category}, storage.ReadOptions{})
		require.NoError(t, err)
		defer iter.Stop()

		cancelledCtx, cancel := context.WithCancel(ctx)
		cancel()

		_, err = iter.Next(cancelledCtx)
		require.ErrorIs(t, err, context.Canceled)
		require.NotErrorIs(t, err, storage.ErrIteratorDone)
	})
}

func ProductPaginationTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	category := "page-" + testutils.CreateRandomString(8)
	products := mustCreateProducts(t, ds, category, 10)
	filter := storage.ProductFilter{Category: category}

	t.Run("pages_are_disjoint_and_ordered", func(t *testing.T) {
		var (
			seen []string
			from string
		)

		for page := 0; ; page++ {
			items, next, err := ds.ReadProductsPage(ctx, filter, storage.PaginationOptions{PageSize: 3, From: from})
			require.NoError(t, err)

			seen = append(seen, productIDs(items)...)

			if next == "" {
				require.LessOrEqual(t, len(items), 3)
				break
			}

			require.Len(t, items, 3)
			// The continuation is the id of the last row actually returned.
			require.Equal(t, items[len(items)-1].ID, next)
			from = next
		}

		require.Equal(t, productIDs(products), seen)
	})

	t.Run("cursor_resumes_strictly_after_last_seen_id", func(t *testing.T) {
		items, next, err := ds.ReadProductsPage(ctx, filter, storage.PaginationOptions{
			PageSize: storage.MaxPageSize,
			From:     products[4].ID,
		})
		require.NoError(t, err)
		require.Empty(t, next)
		require.Equal(t, productIDs(products[5:]), productIDs(items))
	})

	t.Run("exact_page_boundary_has_no_continuation", func(t *testing.T) {
		items, next, err := ds.ReadProductsPage(ctx, filter, storage.PaginationOptions{PageSize: 10})
		require.NoError(t, err)
		require.Len(t, items, 10)
		require.Empty(t, next)
	})

	t.Run("cursor_past_end_returns_empty_page", func(t *testing.T) {
		items, next, err := ds.ReadProductsPage(ctx, filter, storage.PaginationOptions{
			PageSize: 3,
			From:     products[9].ID,
		})
		require.NoError(t, err)
		require.Empty(t, items)
		require.Empty(t, next)
	})

	t.Run("offset_mode_returns_the_same_rows_as_keyset_mode", func(t *testing.T) {
		var offsetIDs []string
		for offset := 0; ; offset += 4 {
			items, more, err := ds.ReadProductsPageByOffset(ctx, filter, storage.OffsetPaginationOptions{
				PageSize: 4,
				Offset:   offset,
			})
			require.NoError(t, err)
			offsetIDs = append(offsetIDs, productIDs(items)...)
			if !more {
				break
			}
		}

		require.Equal(t, productIDs(products), offsetIDs)
	})

	t.Run("offset_past_end_returns_empty_page", func(t *testing.T) {
		items, more, err := ds.ReadProductsPageByOffset(ctx, filter, storage.OffsetPaginationOptions{
			PageSize: 4,
			Offset:   50,
		})
		require.NoError(t, err)
		require.Empty(t, items)
		require.False(t, more)
	})

	t.Run("no_match_filter_returns_empty_page", func(t *testing.T) {
		items, next, err := ds.ReadProductsPage(ctx, storage.ProductFilter{Category: "unlikely-to-match"}, storage.PaginationOptions{PageSize: 3})
		require.NoError(t, err)
		require.Empty(t, items)
		require.Empty(t, next)
	})
}
