package commands

import (
	"github.com/merchantd/merchantd/pkg/encoder"
	"github.com/merchantd/merchantd/pkg/storage"
)

// CursorCodec converts between the opaque continuation tokens handed to
// clients and the ordering key they carry. Tokens embed a fingerprint of the
// filter they were issued under; a token presented together with a different
// filter is rejected, because the keyset sequence is only meaningful for the
// filter that produced it.
type CursorCodec struct {
	serializer encoder.CursorSerializer
	encrypter  encoder.Encrypter
}

func NewCursorCodec(serializer encoder.CursorSerializer, encrypter encoder.Encrypter) *CursorCodec {
	return &CursorCodec{
		serializer: serializer,
		encrypter:  encrypter,
	}
}

// NewPlainCursorCodec builds the codec used when no token encryption key is
// configured: pipe-separated cursor in a base64 token form.
func NewPlainCursorCodec() *CursorCodec {
	return NewCursorCodec(encoder.NewStringCursorSerializer(), encoder.NewNoopEncrypter(encoder.NewBase64Encoder()))
}

// Encode builds the continuation token resuming after lastID under the given
// filter parts.
func (c *CursorCodec) Encode(lastID string, filterParts ...string) (string, error) {
	raw, err := c.serializer.SerializeCursor(lastID, encoder.FilterFingerprint(filterParts...))
	if err != nil {
		return "", err
	}

	return c.encrypter.Encrypt(raw)
}

// Decode recovers the ordering key from token, verifying that the token was
// issued under the same filter parts.
func (c *CursorCodec) Decode(token string, filterParts ...string) (string, error) {
	raw, err := c.encrypter.Decrypt(token)
	if err != nil {
		return "", storage.ErrInvalidContinuationToken
	}

	id, fingerprint, err := c.serializer.DeserializeCursor(string(raw))
	if err != nil {
		return "", err
	}

	if fingerprint != encoder.FilterFingerprint(filterParts...) {
		return "", storage.ErrMismatchedPageFilter
	}

	return id, nil
}
