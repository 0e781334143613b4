package encoder

// Encrypter produces the final opaque token string handed to clients.
// Implementations compose an Encoder for the string form.
type Encrypter interface {
	Decrypt(string) ([]byte, error)
	Encrypt([]byte) (string, error)
}

// NoopEncrypter performs no encryption and only applies its Encoder.
type NoopEncrypter struct {
	encoder Encoder
}

var _ Encrypter = (*NoopEncrypter)(nil)

func NewNoopEncrypter(encoder Encoder) *NoopEncrypter {
	return &NoopEncrypter{encoder: encoder}
}

func (e *NoopEncrypter) Decrypt(s string) ([]byte, error) {
	return e.encoder.Decode(s)
}

func (e *NoopEncrypter) Encrypt(data []byte) (string, error) {
	return e.encoder.Encode(data)
}
