package encoder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBase64EmptyDecode(t *testing.T) {
	encoder := NewBase64Encoder()

	got, err := encoder.Decode("")
	require.NoError(t, err)
	require.Equal(t, []byte{}, got)
}

func TestBase64EmptyEncode(t *testing.T) {
	encoder := NewBase64Encoder()

	got, err := encoder.Encode([]byte{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBase64DecodeEncode(t *testing.T) {
	encoder := NewBase64Encoder()

	const want = "01GXSA8YR785C4WYWEXKM0BZXE|a1b2c3"

	encoded, err := encoder.Encode([]byte(want))
	require.NoError(t, err)

	decoded, err := encoder.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, want, string(decoded))
}

func TestBase64DecodeGarbage(t *testing.T) {
	encoder := NewBase64Encoder()

	_, err := encoder.Decode("not%%%base64")
	require.Error(t, err)
}

func TestNoopEncoderRoundTrip(t *testing.T) {
	encoder := NewNoopEncoder()

	encoded, err := encoder.Encode([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, "abc", encoded)

	decoded, err := encoder.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), decoded)
}
