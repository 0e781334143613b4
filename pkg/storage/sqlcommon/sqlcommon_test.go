package sqlcommon

import (
	"context"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/model"
	"github.com/merchantd/merchantd/pkg/storage"
)

func TestChunkStrings(t *testing.T) {
	t.Run("empty_input_yields_no_chunks", func(t *testing.T) {
		require.Empty(t, ChunkStrings(nil, 10))
	})

	t.Run("input_smaller_than_size_is_one_chunk", func(t *testing.T) {
		chunks := ChunkStrings([]string{"a", "b"}, 10)
		require.Equal(t, [][]string{{"a", "b"}}, chunks)
	})

	t.Run("exact_multiple_splits_evenly", func(t *testing.T) {
		chunks := ChunkStrings([]string{"a", "b", "c", "d"}, 2)
		require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, chunks)
	})

	t.Run("remainder_lands_in_final_chunk", func(t *testing.T) {
		chunks := ChunkStrings([]string{"a", "b", "c", "d", "e"}, 2)
		require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, chunks)
	})

	t.Run("order_is_preserved_across_chunks", func(t *testing.T) {
		in := []string{"3", "1", "2"}
		var flat []string
		for _, chunk := range ChunkStrings(in, 2) {
			flat = append(flat, chunk...)
		}
		require.Equal(t, in, flat)
	})
}

func TestNormalizeBatchSize(t *testing.T) {
	require.Equal(t, storage.DefaultBulkBatchSize, NormalizeBatchSize(0))
	require.Equal(t, storage.DefaultBulkBatchSize, NormalizeBatchSize(-5))
	require.Equal(t, 7, NormalizeBatchSize(7))
	require.Equal(t, storage.MaxBulkBatchSize, NormalizeBatchSize(storage.MaxBulkBatchSize+1))
}

func TestProductPatchSetMap(t *testing.T) {
	now := time.Now().UTC()

	t.Run("always_stamps_updated_at", func(t *testing.T) {
		m := ProductPatchSetMap(&model.ProductPatch{ID: "p1"}, now)
		require.Equal(t, map[string]interface{}{"updated_at": now}, m)
	})

	t.Run("only_present_fields_are_assigned", func(t *testing.T) {
		name := "mug"
		stock := int64(3)
		m := ProductPatchSetMap(&model.ProductPatch{ID: "p1", Name: &name, Stock: &stock}, now)
		require.Equal(t, map[string]interface{}{
			"updated_at": now,
			"name":       "mug",
			"stock":      int64(3),
		}, m)
		require.NotContains(t, m, "price_cents")
		require.NotContains(t, m, "sku")
	})
}

func TestOrderPatchSetMap(t *testing.T) {
	now := time.Now().UTC()
	status := model.OrderStatusShipped
	m := OrderPatchSetMap(&model.OrderPatch{ID: "o1", Status: &status}, now)
	require.Equal(t, map[string]interface{}{
		"updated_at": now,
		"status":     "shipped",
	}, m)
}

func TestAddFromID(t *testing.T) {
	base := sq.Select("id").From("products")

	t.Run("ascending_filters_strictly_greater", func(t *testing.T) {
		query, args, err := AddFromID(base, "01ARZ", false).ToSql()
		require.NoError(t, err)
		require.Contains(t, query, "id > ?")
		require.Equal(t, []interface{}{"01ARZ"}, args)
	})

	t.Run("descending_filters_strictly_less", func(t *testing.T) {
		query, args, err := AddFromID(base, "01ARZ", true).ToSql()
		require.NoError(t, err)
		require.Contains(t, query, "id < ?")
		require.Equal(t, []interface{}{"01ARZ"}, args)
	})
}

func TestBulkUpdateInputValidation(t *testing.T) {
	ctx := context.Background()
	name := "renamed"

	t.Run("empty_input_is_rejected", func(t *testing.T) {
		_, err := BulkUpdateProducts(ctx, nil, nil, 0, time.Now())
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("record_without_id_is_rejected", func(t *testing.T) {
		_, err := BulkUpdateProducts(ctx, nil, []*model.ProductPatch{
			{Name: &name},
		}, 0, time.Now())
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("record_without_changes_is_rejected", func(t *testing.T) {
		_, err := BulkUpdateProducts(ctx, nil, []*model.ProductPatch{
			{ID: "p1"},
		}, 0, time.Now())
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
		require.Contains(t, err.Error(), "p1")
	})

	t.Run("duplicate_ids_are_rejected", func(t *testing.T) {
		_, err := BulkUpdateProducts(ctx, nil, []*model.ProductPatch{
			{ID: "p1", Name: &name},
			{ID: "p1", Name: &name},
		}, 0, time.Now())
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})

	t.Run("unknown_order_status_is_rejected", func(t *testing.T) {
		bogus := model.OrderStatus("returned")
		_, err := BulkUpdateOrders(ctx, nil, []*model.OrderPatch{
			{ID: "o1", Status: &bogus},
		}, 0, time.Now())
		require.ErrorIs(t, err, storage.ErrInvalidWriteInput)
	})
}
