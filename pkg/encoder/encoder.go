// Package encoder contains the continuation token encoding stack: byte
// encoders, optional token encryption, and the cursor serializer.
package encoder

// Encoder turns raw token bytes into an opaque string form and back.
type Encoder interface {
	Decode(string) ([]byte, error)
	Encode([]byte) (string, error)
}

type NoopEncoder struct{}

var _ Encoder = (*NoopEncoder)(nil)

func NewNoopEncoder() *NoopEncoder {
	return &NoopEncoder{}
}

func (e NoopEncoder) Decode(s string) ([]byte, error) {
	return []byte(s), nil
}

func (e NoopEncoder) Encode(data []byte) (string, error) {
	return string(data), nil
}
