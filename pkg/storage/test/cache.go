package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/storage"
	"github.com/merchantd/merchantd/pkg/testutils"
)

func SharedCacheTest(t *testing.T, cache storage.SharedCacheBackend) {
	ctx := context.Background()

	key := func(name string) string {
		return name + "-" + testutils.CreateRandomString(8)
	}

	t.Run("get_absent_key_is_a_miss", func(t *testing.T) {
		_, hit, err := cache.GetCacheEntry(ctx, key("absent"))
		require.NoError(t, err)
		require.False(t, hit)
	})

	t.Run("set_then_get_round_trips", func(t *testing.T) {
		k := key("roundtrip")
		value := []byte(`{"cached":true}`)

		err := cache.SetCacheEntry(ctx, k, value, []string{"products"}, time.Minute)
		require.NoError(t, err)

		got, hit, err := cache.GetCacheEntry(ctx, k)
		require.NoError(t, err)
		require.True(t, hit)
		require.Equal(t, value, got)
	})

	t.Run("set_replaces_value_and_tags", func(t *testing.T) {
		k := key("replace")

		require.NoError(t, cache.SetCacheEntry(ctx, k, []byte("v1"), []string{"old-tag"}, time.Minute))
		require.NoError(t, cache.SetCacheEntry(ctx, k, []byte("v2"), []string{"new-tag"}, time.Minute))

		got, hit, err := cache.GetCacheEntry(ctx, k)
		require.NoError(t, err)
		require.True(t, hit)
		require.Equal(t, []byte("v2"), got)

		// The old tag no longer reaches the entry.
		require.NoError(t, cache.DeleteCacheTag(ctx, "old-tag"))

		_, hit, err = cache.GetCacheEntry(ctx, k)
		require.NoError(t, err)
		require.True(t, hit)
	})

	t.Run("expired_entry_is_a_miss", func(t *testing.T) {
		k := key("expired")

		require.NoError(t, cache.SetCacheEntry(ctx, k, []byte("stale"), nil, 10*time.Millisecond))

		time.Sleep(50 * time.Millisecond)

		_, hit, err := cache.GetCacheEntry(ctx, k)
		require.NoError(t, err)
		require.False(t, hit)
	})

	t.Run("delete_entry_removes_it", func(t *testing.T) {
		k := key("delete")

		require.NoError(t, cache.SetCacheEntry(ctx, k, []byte("gone"), []string{"g"}, time.Minute))
		require.NoError(t, cache.DeleteCacheEntry(ctx, k))

		_, hit, err := cache.GetCacheEntry(ctx, k)
		require.NoError(t, err)
		require.False(t, hit)
	})

	t.Run("delete_absent_entry_succeeds", func(t *testing.T) {
		require.NoError(t, cache.DeleteCacheEntry(ctx, key("never-set")))
	})

	t.Run("delete_tag_removes_every_tagged_entry", func(t *testing.T) {
		group := key("group")
		other := key("other")

		k1 := key("k1")
		k2 := key("k2")
		k3 := key("k3")

		require.NoError(t, cache.SetCacheEntry(ctx, k1, []byte("1"), []string{group}, time.Minute))
		require.NoError(t, cache.SetCacheEntry(ctx, k2, []byte("2"), []string{group, other}, time.Minute))
		require.NoError(t, cache.SetCacheEntry(ctx, k3, []byte("3"), []string{other}, time.Minute))

		require.NoError(t, cache.DeleteCacheTag(ctx, group))

		_, hit, err := cache.GetCacheEntry(ctx, k1)
		require.NoError(t, err)
		require.False(t, hit)

		_, hit, err = cache.GetCacheEntry(ctx, k2)
		require.NoError(t, err)
		require.False(t, hit)

		// Entries outside the tag stay cached.
		got, hit, err := cache.GetCacheEntry(ctx, k3)
		require.NoError(t, err)
		require.True(t, hit)
		require.Equal(t, []byte("3"), got)
	})

	t.Run("delete_absent_tag_succeeds", func(t *testing.T) {
		require.NoError(t, cache.DeleteCacheTag(ctx, key("no-such-tag")))
	})
}
