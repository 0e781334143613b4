package commands

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/internal/export"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage/memory"
)

func TestExportProductsQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("iterates_every_row_in_order", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		want := make([]string, 0, 3)
		for i := 0; i < 3; i++ {
			want = append(want, seedProduct(t, ds, "export").ID)
		}

		resp, err := NewExportProductsQuery(ds).Execute(ctx, &ExportProductsRequest{Category: "export"})
		require.NoError(t, err)

		var got []string
		for _, p := range drainProductIterator(t, ctx, resp.Iterator) {
			got = append(got, p.ID)
		}
		require.Equal(t, want, got)
	})

	t.Run("descending_order_reverses_the_sequence", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		first := seedProduct(t, ds, "export")
		second := seedProduct(t, ds, "export")

		resp, err := NewExportProductsQuery(ds).Execute(ctx, &ExportProductsRequest{Category: "export", Order: "desc"})
		require.NoError(t, err)

		got := drainProductIterator(t, ctx, resp.Iterator)
		require.Len(t, got, 2)
		require.Equal(t, second.ID, got[0].ID)
		require.Equal(t, first.ID, got[1].ID)
	})

	t.Run("client_override_only_lowers_the_ceiling", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		q := NewExportProductsQuery(ds, WithExportProductsQuerySafeguards(export.Safeguards{
			MaxRecords:    100,
			FlushInterval: 10,
		}))

		resp, err := q.Execute(ctx, &ExportProductsRequest{MaxRecords: 5})
		require.NoError(t, err)
		resp.Iterator.Stop()
		require.Equal(t, 5, resp.Safeguards.MaxRecords)
		require.Equal(t, 10, resp.Safeguards.FlushInterval)

		resp, err = q.Execute(ctx, &ExportProductsRequest{MaxRecords: 500})
		require.NoError(t, err)
		resp.Iterator.Stop()
		require.Equal(t, 100, resp.Safeguards.MaxRecords)

		resp, err = q.Execute(ctx, &ExportProductsRequest{})
		require.NoError(t, err)
		resp.Iterator.Stop()
		require.Equal(t, 100, resp.Safeguards.MaxRecords)
	})

	t.Run("unknown_order_is_rejected", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		_, err := NewExportProductsQuery(ds).Execute(ctx, &ExportProductsRequest{Order: "sideways"})

		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusBadRequest, encoded.HTTPStatusCode)
	})

	t.Run("negative_max_records_is_rejected", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		_, err := NewExportProductsQuery(ds).Execute(ctx, &ExportProductsRequest{MaxRecords: -1})

		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusBadRequest, encoded.HTTPStatusCode)
	})
}
