package export

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	contentTypeCBOR      = "application/cbor"
	contentTypeNDJSON    = "application/x-ndjson"
	contentTypeJSONArray = "application/json"
)

// FrameEncoder writes one framed record at a time to an output stream.
// Begin and End bracket the whole stream; formats without a preamble or
// epilogue implement them as no-ops.
type FrameEncoder interface {
	ContentType() string
	Begin() error
	Encode(record any) error
	End() error
}

// NegotiateEncoder selects the frame encoder for a request's Accept header.
// Server priority is fixed: CBOR, then NDJSON, then a JSON array as the
// default. Selection happens once per request; q-values are ignored and only
// media type membership matters.
func NegotiateEncoder(accept string, w io.Writer) FrameEncoder {
	accepted := map[string]struct{}{}
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, _ := strings.Cut(part, ";")
		mediaType = strings.ToLower(strings.TrimSpace(mediaType))
		if mediaType != "" {
			accepted[mediaType] = struct{}{}
		}
	}

	if _, ok := accepted[contentTypeCBOR]; ok {
		return NewCBOREncoder(w)
	}
	if _, ok := accepted[contentTypeNDJSON]; ok {
		return NewNDJSONEncoder(w)
	}

	return NewJSONArrayEncoder(w)
}

type cborEncoder struct {
	enc *cbor.Encoder
}

// NewCBOREncoder frames records as a back-to-back CBOR sequence.
func NewCBOREncoder(w io.Writer) FrameEncoder {
	return &cborEncoder{enc: cbor.NewEncoder(w)}
}

func (e *cborEncoder) ContentType() string { return contentTypeCBOR }

func (e *cborEncoder) Begin() error { return nil }

func (e *cborEncoder) Encode(record any) error { return e.enc.Encode(record) }

func (e *cborEncoder) End() error { return nil }

type ndjsonEncoder struct {
	w io.Writer
}

// NewNDJSONEncoder frames records as newline-delimited JSON.
func NewNDJSONEncoder(w io.Writer) FrameEncoder {
	return &ndjsonEncoder{w: w}
}

func (e *ndjsonEncoder) ContentType() string { return contentTypeNDJSON }

func (e *ndjsonEncoder) Begin() error { return nil }

func (e *ndjsonEncoder) Encode(record any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = e.w.Write(append(b, '\n'))
	return err
}

func (e *ndjsonEncoder) End() error { return nil }

type jsonArrayEncoder struct {
	w     io.Writer
	wrote bool
}

// NewJSONArrayEncoder frames records as elements of a single JSON array.
func NewJSONArrayEncoder(w io.Writer) FrameEncoder {
	return &jsonArrayEncoder{w: w}
}

func (e *jsonArrayEncoder) ContentType() string { return contentTypeJSONArray }

func (e *jsonArrayEncoder) Begin() error {
	_, err := e.w.Write([]byte{'['})
	return err
}

func (e *jsonArrayEncoder) Encode(record any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if e.wrote {
		if _, err := e.w.Write([]byte{','}); err != nil {
			return err
		}
	}
	if _, err := e.w.Write(b); err != nil {
		return err
	}
	e.wrote = true

	return nil
}

func (e *jsonArrayEncoder) End() error {
	_, err := e.w.Write([]byte{']'})
	return err
}

// FlushWriter is the append-and-flush byte sink the pipeline streams into.
type FlushWriter interface {
	io.Writer
	Flush() error
}

type httpSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewHTTPSink adapts a response writer into a FlushWriter. Flush is a no-op
// when the underlying writer does not support it.
func NewHTTPSink(w http.ResponseWriter) FlushWriter {
	flusher, _ := w.(http.Flusher)
	return &httpSink{w: w, flusher: flusher}
}

func (s *httpSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *httpSink) Flush() error {
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
