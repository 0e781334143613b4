package commands

import (
	"encoding/base64"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/encoder"
	"github.com/merchantd/merchantd/pkg/storage"
)

func TestCursorCodec(t *testing.T) {
	t.Run("round_trips_the_ordering_key", func(t *testing.T) {
		codec := NewPlainCursorCodec()
		id := ulid.Make().String()

		token, err := codec.Encode(id, "products", "keyboards")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		got, err := codec.Decode(token, "products", "keyboards")
		require.NoError(t, err)
		require.Equal(t, id, got)
	})

	t.Run("rejects_a_corrupt_token", func(t *testing.T) {
		codec := NewPlainCursorCodec()

		_, err := codec.Decode("not-a-token!!", "products", "")
		require.ErrorIs(t, err, storage.ErrInvalidContinuationToken)
	})

	t.Run("rejects_a_token_whose_key_is_not_a_ulid", func(t *testing.T) {
		codec := NewPlainCursorCodec()
		token := base64.URLEncoding.EncodeToString([]byte("nope|abc"))

		_, err := codec.Decode(token, "products", "")
		require.ErrorIs(t, err, storage.ErrInvalidContinuationToken)
	})

	t.Run("rejects_a_filter_mismatch", func(t *testing.T) {
		codec := NewPlainCursorCodec()

		token, err := codec.Encode(ulid.Make().String(), "products", "keyboards")
		require.NoError(t, err)

		_, err = codec.Decode(token, "products", "monitors")
		require.ErrorIs(t, err, storage.ErrMismatchedPageFilter)
	})

	t.Run("encrypted_tokens_round_trip", func(t *testing.T) {
		encrypter, err := encoder.NewGCMEncrypter("cursor-key", encoder.NewBase64Encoder())
		require.NoError(t, err)
		codec := NewCursorCodec(encoder.NewStringCursorSerializer(), encrypter)
		id := ulid.Make().String()

		token, err := codec.Encode(id, "orders", "paid")
		require.NoError(t, err)

		got, err := codec.Decode(token, "orders", "paid")
		require.NoError(t, err)
		require.Equal(t, id, got)
	})

	t.Run("encrypted_tokens_do_not_decode_under_another_key", func(t *testing.T) {
		first, err := encoder.NewGCMEncrypter("first-key", encoder.NewBase64Encoder())
		require.NoError(t, err)
		second, err := encoder.NewGCMEncrypter("second-key", encoder.NewBase64Encoder())
		require.NoError(t, err)

		token, err := NewCursorCodec(encoder.NewStringCursorSerializer(), first).Encode(ulid.Make().String(), "orders", "")
		require.NoError(t, err)

		_, err = NewCursorCodec(encoder.NewStringCursorSerializer(), second).Decode(token, "orders", "")
		require.ErrorIs(t, err, storage.ErrInvalidContinuationToken)
	})
}
