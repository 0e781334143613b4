package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticIterator(t *testing.T) {
	t.Run("yields_items_in_order_then_done", func(t *testing.T) {
		iter := NewStaticIterator([]int{1, 2, 3})
		defer iter.Stop()

		var got []int
		for {
			v, err := iter.Next(context.Background())
			if err != nil {
				require.ErrorIs(t, err, ErrIteratorDone)
				break
			}
			got = append(got, v)
		}

		require.Equal(t, []int{1, 2, 3}, got)
	})

	t.Run("empty_slice_is_immediately_done", func(t *testing.T) {
		iter := NewStaticIterator[string](nil)
		defer iter.Stop()

		_, err := iter.Next(context.Background())
		require.ErrorIs(t, err, ErrIteratorDone)
	})

	t.Run("cancelled_context_surfaces_context_error", func(t *testing.T) {
		iter := NewStaticIterator([]int{1})
		defer iter.Stop()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := iter.Next(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestFilteredIterator(t *testing.T) {
	iter := NewFilteredIterator(
		NewStaticIterator([]int{1, 2, 3, 4, 5, 6}),
		func(v int) bool { return v%2 == 0 },
	)
	defer iter.Stop()

	var got []int
	for {
		v, err := iter.Next(context.Background())
		if err != nil {
			require.ErrorIs(t, err, ErrIteratorDone)
			break
		}
		got = append(got, v)
	}

	require.Equal(t, []int{2, 4, 6}, got)
}

func TestTakeIterator(t *testing.T) {
	t.Run("truncates_after_n_items", func(t *testing.T) {
		iter := NewTakeIterator(NewStaticIterator([]int{1, 2, 3, 4}), 2)
		defer iter.Stop()

		var got []int
		for {
			v, err := iter.Next(context.Background())
			if err != nil {
				require.ErrorIs(t, err, ErrIteratorDone)
				break
			}
			got = append(got, v)
		}

		require.Equal(t, []int{1, 2}, got)
	})

	t.Run("short_source_ends_naturally", func(t *testing.T) {
		iter := NewTakeIterator(NewStaticIterator([]int{1}), 5)
		defer iter.Stop()

		v, err := iter.Next(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, v)

		_, err = iter.Next(context.Background())
		require.ErrorIs(t, err, ErrIteratorDone)
	})
}
