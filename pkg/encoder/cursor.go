package encoder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/oklog/ulid/v2"

	"github.com/merchantd/merchantd/pkg/storage"
)

// CursorSerializer converts between a keyset cursor (the last-seen ordering
// key plus a fingerprint of the filter it was issued under) and its token
// byte form. The byte form is what gets encrypted/encoded into the opaque
// client-facing token.
type CursorSerializer interface {
	SerializeCursor(ulid string, filterFingerprint string) ([]byte, error)
	DeserializeCursor(token string) (ulid string, filterFingerprint string, err error)
}

// StringCursorSerializer serializes the cursor as ulid and fingerprint
// concatenated by a pipe.
type StringCursorSerializer struct{}

var _ CursorSerializer = (*StringCursorSerializer)(nil)

func NewStringCursorSerializer() *StringCursorSerializer {
	return &StringCursorSerializer{}
}

func (s *StringCursorSerializer) SerializeCursor(id, filterFingerprint string) ([]byte, error) {
	if id == "" {
		return nil, errors.New("empty ulid provided for continuation token")
	}

	return []byte(fmt.Sprintf("%s|%s", id, filterFingerprint)), nil
}

func (s *StringCursorSerializer) DeserializeCursor(token string) (string, string, error) {
	id, fingerprint, found := strings.Cut(token, "|")
	if !found {
		return "", "", storage.ErrInvalidContinuationToken
	}

	if _, err := ulid.Parse(id); err != nil {
		return "", "", storage.ErrInvalidContinuationToken
	}

	return id, fingerprint, nil
}

// FilterFingerprint digests the filter parameters a cursor was issued under.
// A cursor presented together with a different filter must be rejected: the
// keyset sequence is only meaningful for the filter that produced it.
func FilterFingerprint(parts ...string) string {
	digest := xxhash.New()
	for _, part := range parts {
		_, _ = digest.WriteString(part)
		_, _ = digest.Write([]byte{0})
	}

	return strconv.FormatUint(digest.Sum64(), 16)
}
