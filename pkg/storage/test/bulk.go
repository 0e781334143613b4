package test

import (
	"context"
	"sort"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/testutils"
)

func BulkUpdateProductsTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	t.Run("applies_matched_and_reports_unresolved_sorted", func(t *testing.T) {
		category := "bulk-" + testutils.CreateRandomString(8)
		products := mustCreateProducts(t, ds, category, 3)

		missing := []string{ulid.Make().String(), ulid.Make().String()}
		price := int64(999)

		patches := []*model.ProductPatch{
			{ID: products[0].ID, PriceCents: &price},
			{ID: missing[0], PriceCents: &price},
			{ID: products[1].ID, PriceCents: &price},
			{ID: missing[1], PriceCents: &price},
		}

		res, err := ds.BulkUpdateProducts(ctx, patches, 2)
		require.NoError(t, err)
		require.Equal(t, 2, res.Applied)

		wantUnresolved := append([]string(nil), missing...)
		sort.Strings(wantUnresolved)
		require.Equal(t, wantUnresolved, res.Unresolved)

		// The patches never touch category, so only the rows' current
		// category is affected, deduplicated across both rows.
		require.Equal(t, []string{category}, res.AffectedGroups)

		for _, p := range products[:2] {
			got, err := ds.GetProduct(ctx, p.ID)
			require.NoError(t, err)
			require.Equal(t, price, got.PriceCents)
		}

		// The untouched product keeps its original price.
		got, err := ds.GetProduct(ctx, products[2].ID)
		require.NoError(t, err)
		require.Equal(t, products[2].PriceCents, got.PriceCents)
	})

	t.Run("input_larger_than_batch_size_spans_chunks", func(t *testing.T) {
		products := mustCreateProducts(t, ds, "chunk-"+testutils.CreateRandomString(8), 5)

		stock := int64(0)
		patches := make([]*model.ProductPatch, 0, len(products))
		for _, p := range products {
			patches = append(patches, &model.ProductPatch{ID: p.ID, Stock: &stock})
		}

		res, err := ds.BulkUpdateProducts(ctx, patches, 2)
		require.NoError(t, err)
		require.Equal(t, 5, res.Applied)
		require.Empty(t, res.Unresolved)

		for _, p := range products {
			got, err := ds.GetProduct(ctx, p.ID)
			require.NoError(t, err)
			require.Zero(t, got.Stock)
		}
	})

	t.Run("moving_category_reports_old_and_new_group", func(t *testing.T) {
		suffix := testutils.CreateRandomString(8)
		from, to := "aaa-"+suffix, "bbb-"+suffix
		p := mustCreateProducts(t, ds, from, 1)[0]

		res, err := ds.BulkUpdateProducts(ctx, []*model.ProductPatch{
			{ID: p.ID, Category: &to},
		}, 10)
		require.NoError(t, err)
		require.Equal(t, 1, res.Applied)
		require.Equal(t, []string{from, to}, res.AffectedGroups)
	})

	t.Run("all_unresolved_applies_nothing", func(t *testing.T) {
		name := "ghost"
		patches := []*model.ProductPatch{
			{ID: ulid.Make().String(), Name: &name},
			{ID: ulid.Make().String(), Name: &name},
		}

		res, err := ds.BulkUpdateProducts(ctx, patches, 10)
		require.NoError(t, err)
		require.Zero(t, res.Applied)
		require.Len(t, res.Unresolved, 2)
		require.Empty(t, res.AffectedGroups)
	})

	t.Run("empty_input_is_invalid", func(t *testing.T) {
		_, err := ds.BulkUpdateProducts(ctx, nil, 10)
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("record_without_id_is_invalid", func(t *testing.T) {
		name := "nameless"
		_, err := ds.BulkUpdateProducts(ctx, []*model.ProductPatch{{Name: &name}}, 10)
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("duplicate_ids_are_invalid", func(t *testing.T) {
		p := mustCreateProducts(t, ds, "", 1)[0]

		name := "twice"
		_, err := ds.BulkUpdateProducts(ctx, []*model.ProductPatch{
			{ID: p.ID, Name: &name},
			{ID: p.ID, Name: &name},
		}, 10)
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("one_invalid_record_rejects_the_whole_request", func(t *testing.T) {
		p := mustCreateProducts(t, ds, "", 1)[0]

		price := int64(123)
		_, err := ds.BulkUpdateProducts(ctx, []*model.ProductPatch{
			{ID: p.ID, PriceCents: &price},
			{ID: ulid.Make().String()}, // no field changes
		}, 10)
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)

		// Nothing was applied, the valid record included.
		got, err := ds.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, p.PriceCents, got.PriceCents)
	})
}

func BulkUpdateOrdersTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	t.Run("applies_matched_and_reports_unresolved_sorted", func(t *testing.T) {
		orders := mustCreateOrders(t, ds, model.OrderStatusPending, 3)

		missing := []string{ulid.Make().String(), ulid.Make().String()}
		paid := model.OrderStatusPaid

		patches := []*model.OrderPatch{
			{ID: orders[0].ID, Status: &paid},
			{ID: missing[0], Status: &paid},
			{ID: orders[1].ID, Status: &paid},
			{ID: missing[1], Status: &paid},
		}

		res, err := ds.BulkUpdateOrders(ctx, patches, 2)
		require.NoError(t, err)
		require.Equal(t, 2, res.Applied)

		wantUnresolved := append([]string(nil), missing...)
		sort.Strings(wantUnresolved)
		require.Equal(t, wantUnresolved, res.Unresolved)

		// Old and new status both had membership changes.
		require.Equal(t, []string{"paid", "pending"}, res.AffectedGroups)

		for _, o := range orders[:2] {
			got, err := ds.GetOrder(ctx, o.ID)
			require.NoError(t, err)
			require.Equal(t, paid, got.Status)
		}

		got, err := ds.GetOrder(ctx, orders[2].ID)
		require.NoError(t, err)
		require.Equal(t, model.OrderStatusPending, got.Status)
	})

	t.Run("patches_are_sparse", func(t *testing.T) {
		o := mustCreateOrders(t, ds, model.OrderStatusPending, 1)[0]

		email := "changed@example.com"
		res, err := ds.BulkUpdateOrders(ctx, []*model.OrderPatch{
			{ID: o.ID, CustomerEmail: &email},
		}, 10)
		require.NoError(t, err)
		require.Equal(t, 1, res.Applied)
		require.Equal(t, []string{"pending"}, res.AffectedGroups)

		got, err := ds.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		require.Equal(t, email, got.CustomerEmail)
		require.Equal(t, model.OrderStatusPending, got.Status)
	})

	t.Run("empty_input_is_invalid", func(t *testing.T) {
		_, err := ds.BulkUpdateOrders(ctx, nil, 10)
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("unknown_status_rejects_the_whole_request", func(t *testing.T) {
		o := mustCreateOrders(t, ds, model.OrderStatusPending, 1)[0]

		paid := model.OrderStatusPaid
		bogus := model.OrderStatus("misplaced")
		_, err := ds.BulkUpdateOrders(ctx, []*model.OrderPatch{
			{ID: o.ID, Status: &paid},
			{ID: ulid.Make().String(), Status: &bogus},
		}, 10)
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)

		got, err := ds.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		require.Equal(t, model.OrderStatusPending, got.Status)
	})
}
