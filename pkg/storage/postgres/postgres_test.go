package postgres

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/storage"
)

func TestHandleSQLError(t *testing.T) {
	t.Run("no_rows_maps_to_not_found", func(t *testing.T) {
		err := HandleSQLError(sql.ErrNoRows)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("duplicate_key_maps_to_collision", func(t *testing.T) {
		base := errors.New(`ERROR: duplicate key value violates unique constraint "products_pkey" (SQLSTATE 23505)`)
		err := HandleSQLError(base)
		require.ErrorIs(t, err, storage.ErrCollision)
	})

	t.Run("other_errors_are_wrapped", func(t *testing.T) {
		base := errors.New("connection refused")
		err := HandleSQLError(base)
		require.ErrorIs(t, err, base)
		require.Contains(t, err.Error(), "sql error")
	})
}
