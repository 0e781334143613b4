package encoder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGCMEncrypterRoundTrip(t *testing.T) {
	encrypter, err := NewGCMEncrypter("some-secret-key", NewBase64Encoder())
	require.NoError(t, err)

	want := []byte("01GXSA8YR785C4WYWEXKM0BZXE|deadbeef")

	token, err := encrypter.Encrypt(want)
	require.NoError(t, err)
	require.NotEqual(t, string(want), token)

	got, err := encrypter.Decrypt(token)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestGCMEncrypterEmpty(t *testing.T) {
	encrypter, err := NewGCMEncrypter("some-secret-key", NewBase64Encoder())
	require.NoError(t, err)

	token, err := encrypter.Encrypt(nil)
	require.NoError(t, err)
	require.Empty(t, token)

	got, err := encrypter.Decrypt("")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestGCMEncrypterRejectsTamperedToken(t *testing.T) {
	encrypter, err := NewGCMEncrypter("some-secret-key", NewBase64Encoder())
	require.NoError(t, err)

	_, err = encrypter.Decrypt("c2hvcnQ=")
	require.Error(t, err)
}

func TestGCMEncrypterKeyMismatch(t *testing.T) {
	first, err := NewGCMEncrypter("key-one", NewBase64Encoder())
	require.NoError(t, err)

	second, err := NewGCMEncrypter("key-two", NewBase64Encoder())
	require.NoError(t, err)

	token, err := first.Encrypt([]byte("01GXSA8YR785C4WYWEXKM0BZXE|"))
	require.NoError(t, err)

	_, err = second.Decrypt(token)
	require.Error(t, err)
}
