package sqlite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusyRetry(t *testing.T) {
	t.Run("success_returns_immediately", func(t *testing.T) {
		calls := 0
		err := busyRetry(func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("non_busy_error_is_not_retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := busyRetry(func() error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		require.Equal(t, 1, calls)
	})
}
