package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/storage"
)

func TestGuardedIterator(t *testing.T) {
	t.Run("exactly_max_records_passes", func(t *testing.T) {
		iter := NewGuardedIterator(storage.NewStaticIterator([]int{1, 2, 3}), 3)
		defer iter.Stop()

		for want := 1; want <= 3; want++ {
			got, err := iter.Next(context.Background())
			require.NoError(t, err)
			require.Equal(t, want, got)
		}

		_, err := iter.Next(context.Background())
		require.ErrorIs(t, err, storage.ErrIteratorDone)
	})

	t.Run("overflow_fails_before_exposing_the_item", func(t *testing.T) {
		iter := NewGuardedIterator(storage.NewStaticIterator([]int{1, 2, 3, 4}), 3)
		defer iter.Stop()

		for want := 1; want <= 3; want++ {
			got, err := iter.Next(context.Background())
			require.NoError(t, err)
			require.Equal(t, want, got)
		}

		got, err := iter.Next(context.Background())
		require.ErrorIs(t, err, ErrRecordLimitExceeded)
		require.Zero(t, got)
	})

	t.Run("cancellation_surfaces_as_the_context_error", func(t *testing.T) {
		iter := NewGuardedIterator(storage.NewStaticIterator([]int{1, 2, 3}), 3)
		defer iter.Stop()

		ctx, cancel := context.WithCancel(context.Background())

		got, err := iter.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, got)

		cancel()

		_, err = iter.Next(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}
