package commands

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/model"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage/memory"
)

func TestListOrdersQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("status_filter_restricts_rows", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		seedOrder(t, ds, model.OrderStatusPending)
		seedOrder(t, ds, model.OrderStatusPaid)
		want := seedOrder(t, ds, model.OrderStatusShipped)

		page, err := NewListOrdersQuery(ds).Execute(ctx, &ListOrdersRequest{Status: "shipped"})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		require.Equal(t, want.ID, page.Data[0].ID)
		require.False(t, page.HasMore)
	})

	t.Run("unknown_status_is_rejected", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		_, err := NewListOrdersQuery(ds).Execute(ctx, &ListOrdersRequest{Status: "refunded"})

		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusBadRequest, encoded.HTTPStatusCode)
	})

	t.Run("cursor_walks_the_sequence", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		want := make([]string, 0, 3)
		for i := 0; i < 3; i++ {
			want = append(want, seedOrder(t, ds, model.OrderStatusPending).ID)
		}

		q := NewListOrdersQuery(ds)

		var got []string
		cursor := ""
		for {
			page, err := q.Execute(ctx, &ListOrdersRequest{PageSize: 2, Cursor: cursor})
			require.NoError(t, err)
			for _, o := range page.Data {
				got = append(got, o.ID)
			}
			if !page.HasMore {
				require.Empty(t, page.NextCursor)
				break
			}
			require.NotEmpty(t, page.NextCursor)
			cursor = page.NextCursor
		}
		require.Equal(t, want, got)
	})

	t.Run("cursor_issued_under_a_different_filter_is_rejected", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		for i := 0; i < 2; i++ {
			seedOrder(t, ds, model.OrderStatusPending)
		}

		q := NewListOrdersQuery(ds)
		page, err := q.Execute(ctx, &ListOrdersRequest{PageSize: 1, Status: "pending"})
		require.NoError(t, err)
		require.NotEmpty(t, page.NextCursor)

		_, err = q.Execute(ctx, &ListOrdersRequest{PageSize: 1, Status: "paid", Cursor: page.NextCursor})

		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusBadRequest, encoded.HTTPStatusCode)
		require.Equal(t, "mismatched_page_filter", encoded.ErrorCode)
	})

	t.Run("cursor_and_offset_cannot_be_combined", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		offset := int32(0)
		_, err := NewListOrdersQuery(ds).Execute(ctx, &ListOrdersRequest{Cursor: "anything", Offset: &offset})

		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusBadRequest, encoded.HTTPStatusCode)
	})
}
