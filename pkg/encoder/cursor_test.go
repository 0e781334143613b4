package encoder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merchantd/merchantd/pkg/storage"
)

func TestCursorSerializerRoundTrip(t *testing.T) {
	serializer := NewStringCursorSerializer()

	fingerprint := FilterFingerprint("category", "books")

	token, err := serializer.SerializeCursor("01GXSA8YR785C4WYWEXKM0BZXE", fingerprint)
	require.NoError(t, err)

	id, gotFingerprint, err := serializer.DeserializeCursor(string(token))
	require.NoError(t, err)
	require.Equal(t, "01GXSA8YR785C4WYWEXKM0BZXE", id)
	require.Equal(t, fingerprint, gotFingerprint)
}

func TestCursorSerializerEmptyUlid(t *testing.T) {
	serializer := NewStringCursorSerializer()

	_, err := serializer.SerializeCursor("", "abc")
	require.Error(t, err)
}

func TestCursorSerializerMissingSeparator(t *testing.T) {
	serializer := NewStringCursorSerializer()

	_, _, err := serializer.DeserializeCursor("01GXSA8YR785C4WYWEXKM0BZXE")
	require.ErrorIs(t, err, storage.ErrInvalidContinuationToken)
}

func TestCursorSerializerBadUlid(t *testing.T) {
	serializer := NewStringCursorSerializer()

	_, _, err := serializer.DeserializeCursor("not-a-ulid|abc")
	require.ErrorIs(t, err, storage.ErrInvalidContinuationToken)
}

func TestFilterFingerprintDistinguishesFilters(t *testing.T) {
	require.Equal(t, FilterFingerprint("a", "b"), FilterFingerprint("a", "b"))
	require.NotEqual(t, FilterFingerprint("a", "b"), FilterFingerprint("a", "c"))
	// Field boundaries matter: ("ab","") must not collide with ("a","b").
	require.NotEqual(t, FilterFingerprint("ab", ""), FilterFingerprint("a", "b"))
}
