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

func TestGetOrderQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("returns_the_order", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		seeded := seedOrder(t, ds, model.OrderStatusPending)

		got, err := NewGetOrderQuery(ds).Execute(ctx, seeded.ID)
		require.NoError(t, err)
		require.Equal(t, seeded.Reference, got.Reference)
		require.Equal(t, model.OrderStatusPending, got.Status)
	})

	t.Run("missing_order_is_not_found", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		_, err := NewGetOrderQuery(ds).Execute(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")

		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusNotFound, encoded.HTTPStatusCode)
	})

	t.Run("empty_id_is_a_validation_error", func(t *testing.T) {
		ds := memory.New()
		t.Cleanup(ds.Close)

		_, err := NewGetOrderQuery(ds).Execute(ctx, "")

		var encoded *serverErrors.EncodedError
		require.ErrorAs(t, err, &encoded)
		require.Equal(t, http.StatusBadRequest, encoded.HTTPStatusCode)
	})
}
