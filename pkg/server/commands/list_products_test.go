package commands

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/storage/memory"
)

func TestListProductsQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("pages_walk_the_sequence_in_order", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		want := make([]string, 0, 5)
		for i := 0; i < 5; i++ {
			want = append(want, seedProduct(t, ds, "walk").ID)
		}

		q := NewListProductsQuery(ds)
		req := &ListProductsRequest{PageSize: 2, Category: "walk"}

		var got []string
		for {
			page, err := q.Execute(ctx, req)
			require.NoError(t, err)
			require.Equal(t, int32(2), page.PageSize)
			for _, p := range page.Data {
				got = append(got, p.ID)
			}
			if !page.HasMore {
				require.Empty(t, page.NextCursor)
				break
			}
			require.NotEmpty(t, page.NextCursor)
			req.Cursor = page.NextCursor
		}

		require.Equal(t, want, got)
	})

	t.Run("page_size_defaults_and_clamps", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)
		seedProduct(t, ds, "")

		q := NewListProductsQuery(ds)

		page, err := q.Execute(ctx, &ListProductsRequest{})
		require.NoError(t, err)
		require.Equal(t, int32(storage.DefaultPageSize), page.PageSize)

		page, err = q.Execute(ctx, &ListProductsRequest{PageSize: 500})
		require.NoError(t, err)
		require.Equal(t, int32(storage.MaxPageSize), page.PageSize)
	})

	t.Run("category_filter_restricts_rows", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)
		seedProduct(t, ds, "keyboards")
		seedProduct(t, ds, "monitors")

		page, err := NewListProductsQuery(ds).Execute(ctx, &ListProductsRequest{Category: "monitors"})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		require.Equal(t, "monitors", page.Data[0].Category)
	})

	t.Run("offset_mode_matches_keyset_depth", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)
		for i := 0; i < 5; i++ {
			seedProduct(t, ds, "depth")
		}

		q := NewListProductsQuery(ds)

		var keyset []string
		req := &ListProductsRequest{PageSize: 2, Category: "depth"}
		for {
			page, err := q.Execute(ctx, req)
			require.NoError(t, err)
			for _, p := range page.Data {
				keyset = append(keyset, p.ID)
			}
			if !page.HasMore {
				break
			}
			req.Cursor = page.NextCursor
		}

		var offset []string
		for n := int32(0); ; n += 2 {
			at := n
			page, err := q.Execute(ctx, &ListProductsRequest{PageSize: 2, Category: "depth", Offset: &at})
			require.NoError(t, err)
			require.Empty(t, page.NextCursor)
			for _, p := range page.Data {
				offset = append(offset, p.ID)
			}
			if !page.HasMore {
				break
			}
		}

		require.Equal(t, keyset, offset)
	})

	t.Run("cursor_and_offset_cannot_be_combined", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		at := int32(0)
		_, err := NewListProductsQuery(ds).Execute(ctx, &ListProductsRequest{Cursor: "anything", Offset: &at})

		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusBadRequest, encoded.HTTPStatusCode)
	})

	t.Run("corrupt_cursor_is_rejected", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		_, err := NewListProductsQuery(ds).Execute(ctx, &ListProductsRequest{Cursor: "not-a-token!!"})

		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusBadRequest, encoded.HTTPStatusCode)
		require.Equal(t, "invalid_continuation_token", encoded.ErrorCode)
	})

	t.Run("cursor_issued_under_a_different_filter_is_rejected", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)
		seedProduct(t, ds, "keyboards")
		seedProduct(t, ds, "keyboards")

		q := NewListProductsQuery(ds)
		page, err := q.Execute(ctx, &ListProductsRequest{PageSize: 1, Category: "keyboards"})
		require.NoError(t, err)
		require.NotEmpty(t, page.NextCursor)

		_, err = q.Execute(ctx, &ListProductsRequest{PageSize: 1, Category: "monitors", Cursor: page.NextCursor})

		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusBadRequest, encoded.HTTPStatusCode)
		require.Equal(t, "mismatched_page_filter", encoded.ErrorCode)
	})

	t.Run("filtered_pages_cache_independently", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)
		tc := newTestCache(t)

		keyboard := seedProduct(t, ds, "keyboards")
		monitor := seedProduct(t, ds, "monitors")

		list := NewListProductsQuery(ds, WithListProductsQueryCache(tc))

		monitors, err := list.Execute(ctx, &ListProductsRequest{Category: "monitors"})
		require.NoError(t, err)
		require.Equal(t, "seeded product", monitors.Data[0].Name)

		// A keyboard update invalidates the keyboards grouping only.
		newName := "updated keyboard"
		_, err = NewUpdateProductCommand(ds, WithUpdateProductCommandCache(tc)).
			Execute(ctx, &model.ProductPatch{ID: keyboard.ID, Name: &newName})
		require.NoError(t, err)

		// A direct store write would be visible after an invalidation; the
		// monitors page still serves from cache.
		staleName := "changed behind the cache"
		_, err = ds.UpdateProduct(ctx, &model.ProductPatch{ID: monitor.ID, Name: &staleName})
		require.NoError(t, err)

		monitors, err = list.Execute(ctx, &ListProductsRequest{Category: "monitors"})
		require.NoError(t, err)
		require.Equal(t, "seeded product", monitors.Data[0].Name)

		keyboards, err := list.Execute(ctx, &ListProductsRequest{Category: "keyboards"})
		require.NoError(t, err)
		require.Equal(t, "updated keyboard", keyboards.Data[0].Name)
	})
}
