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

func newOrder(status model.OrderStatus) *model.Order {
	return &model.Order{
		ID:            ulid.Make().String(),
		Reference:     "REF-" + testutils.CreateRandomString(12),
		CustomerEmail: testutils.CreateRandomString(8) + "@example.com",
		Status:        status,
		TotalCents:    4900,
		Currency:      "USD",
	}
}

func mustCreateOrders(t *testing.T, ds storage.Datastore, status model.OrderStatus, n int) []*model.Order {
	t.Helper()

	orders := make([]*model.Order, 0, n)
	for i := 0; i < n; i++ {
		o := newOrder(status)
		require.NoError(t, ds.CreateOrder(context.Background(), o))
		orders = append(orders, o)
	}

	return orders
}

func drainOrders(t *testing.T, ctx context.Context, iter storage.Iterator[*model.Order]) []*model.Order {
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

func orderIDs(orders []*model.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func OrderWritingAndReadingTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	t.Run("create_and_get_round_trip", func(t *testing.T) {
		o := newOrder(model.OrderStatusPending)
		require.NoError(t, ds.CreateOrder(ctx, o))
		require.False(t, o.PlacedAt.IsZero())
		require.Equal(t, o.PlacedAt, o.UpdatedAt)

		got, err := ds.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		require.Equal(t, o.ID, got.ID)
		require.Equal(t, o.Reference, got.Reference)
		require.Equal(t, o.CustomerEmail, got.CustomerEmail)
		require.Equal(t, o.Status, got.Status)
		require.Equal(t, o.TotalCents, got.TotalCents)
		require.Equal(t, o.Currency, got.Currency)
	})

	t.Run("inserting_order_twice_fails", func(t *testing.T) {
		o := newOrder(model.OrderStatusPending)
		require.NoError(t, ds.CreateOrder(ctx, o))

		err := ds.CreateOrder(ctx, o)
		require.ErrorIs(t, err, storage.ErrCollision)
	})

	t.Run("inserting_duplicate_reference_fails", func(t *testing.T) {
		o := newOrder(model.OrderStatusPending)
		require.NoError(t, ds.CreateOrder(ctx, o))

		dup := newOrder(model.OrderStatusPending)
		dup.Reference = o.Reference
		err := ds.CreateOrder(ctx, dup)
		require.ErrorIs(t, err, storage.ErrCollision)
	})

	t.Run("get_non-existent_order_returns_not_found", func(t *testing.T) {
		_, err := ds.GetOrder(ctx, ulid.Make().String())
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("update_applies_only_present_fields", func(t *testing.T) {
		o := newOrder(model.OrderStatusPending)
		require.NoError(t, ds.CreateOrder(ctx, o))

		paid := model.OrderStatusPaid
		updated, err := ds.UpdateOrder(ctx, &model.OrderPatch{
			ID:     o.ID,
			Status: &paid,
		})
		require.NoError(t, err)

		require.Equal(t, paid, updated.Status)
		require.Equal(t, o.CustomerEmail, updated.CustomerEmail)
		require.Equal(t, o.Reference, updated.Reference)
		require.False(t, updated.UpdatedAt.Before(o.UpdatedAt))
	})

	t.Run("update_with_unknown_status_is_invalid", func(t *testing.T) {
		o := newOrder(model.OrderStatusPending)
		require.NoError(t, ds.CreateOrder(ctx, o))

		bogus := model.OrderStatus("archived")
		_, err := ds.UpdateOrder(ctx, &model.OrderPatch{
			ID:     o.ID,
			Status: &bogus,
		})
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("update_without_changes_is_invalid", func(t *testing.T) {
		o := newOrder(model.OrderStatusPending)
		require.NoError(t, ds.CreateOrder(ctx, o))

		_, err := ds.UpdateOrder(ctx, &model.OrderPatch{ID: o.ID})
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("update_non-existent_order_returns_not_found", func(t *testing.T) {
		email := "new@example.com"
		_, err := ds.UpdateOrder(ctx, &model.OrderPatch{
			ID:            ulid.Make().String(),
			CustomerEmail: &email,
		})
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("read_orders_filters_by_status", func(t *testing.T) {
		created := mustCreateOrders(t, ds, model.OrderStatusShipped, 3)

		iter, err := ds.ReadOrders(ctx, storage.OrderFilter{Status: model.OrderStatusShipped}, storage.ReadOptions{})
		require.NoError(t, err)

		got := drainOrders(t, ctx, iter)
		for _, o := range got {
			require.Equal(t, model.OrderStatusShipped, o.Status)
		}
		require.Subset(t, orderIDs(got), orderIDs(created))
	})

	t.Run("read_orders_descending_reverses_order", func(t *testing.T) {
		iter, err := ds.ReadOrders(ctx, storage.OrderFilter{}, storage.ReadOptions{SortDescending: true})
		require.NoError(t, err)

		got := drainOrders(t, ctx, iter)
		for i := 1; i < len(got); i++ {
			require.Greater(t, got[i-1].ID, got[i].ID)
		}
	})
}

func OrderPaginationTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	// Cancelled orders exist only in this dataset, so the filter isolates it.
	orders := mustCreateOrders(t, ds, model.OrderStatusCancelled, 8)
	filter := storage.OrderFilter{Status: model.OrderStatusCancelled}

	t.Run("pages_are_disjoint_and_ordered", func(t *testing.T) {
		var (
			seen []string
			from string
		)

		for {
			items, next, err := ds.ReadOrdersPage(ctx, filter, storage.PaginationOptions{PageSize: 3, From: from})
			require.NoError(t, err)

			seen = append(seen, orderIDs(items)...)

			if next == "" {
				break
			}

			require.Len(t, items, 3)
			require.Equal(t, items[len(items)-1].ID, next)
			from = next
		}

		require.Equal(t, orderIDs(orders), seen)
	})

	t.Run("cursor_resumes_strictly_after_last_seen_id", func(t *testing.T) {
		items, next, err := ds.ReadOrdersPage(ctx, filter, storage.PaginationOptions{
			PageSize: storage.MaxPageSize,
			From:     orders[2].ID,
		})
		require.NoError(t, err)
		require.Empty(t, next)
		require.Equal(t, orderIDs(orders[3:]), orderIDs(items))
	})

	t.Run("offset_mode_returns_the_same_rows_as_keyset_mode", func(t *testing.T) {
		var offsetIDs []string
		for offset := 0; ; offset += 3 {
			items, more, err := ds.ReadOrdersPageByOffset(ctx, filter, storage.OffsetPaginationOptions{
				PageSize: 3,
				Offset:   offset,
			})
			require.NoError(t, err)
			offsetIDs = append(offsetIDs, orderIDs(items)...)
			if !more {
				break
			}
		}

		require.Equal(t, orderIDs(orders), offsetIDs)
	})
}
