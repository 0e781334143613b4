package export

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestNegotiateEncoder(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		name        string
		accept      string
		contentType string
	}{
		{
			name:        "cbor_wins_regardless_of_client_order",
			accept:      "application/x-ndjson, application/cbor",
			contentType: "application/cbor",
		},
		{
			name:        "ndjson_when_cbor_absent",
			accept:      "application/x-ndjson",
			contentType: "application/x-ndjson",
		},
		{
			name:        "q_values_are_ignored",
			accept:      "application/json;q=1.0, application/cbor;q=0.1",
			contentType: "application/cbor",
		},
		{
			name:        "json_array_is_the_default",
			accept:      "",
			contentType: "application/json",
		},
		{
			name:        "unknown_types_fall_back_to_json_array",
			accept:      "text/html, */*",
			contentType: "application/json",
		},
		{
			name:        "media_type_matching_is_case_insensitive",
			accept:      " Application/CBOR ",
			contentType: "application/cbor",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			enc := NegotiateEncoder(test.accept, &buf)
			require.Equal(t, test.contentType, enc.ContentType())
		})
	}
}

func TestJSONArrayEncoder(t *testing.T) {
	t.Run("empty_stream_is_an_empty_array", func(t *testing.T) {
		var buf bytes.Buffer
		enc := NewJSONArrayEncoder(&buf)

		require.NoError(t, enc.Begin())
		require.NoError(t, enc.End())
		require.JSONEq(t, `[]`, buf.String())
	})

	t.Run("records_become_array_elements", func(t *testing.T) {
		var buf bytes.Buffer
		enc := NewJSONArrayEncoder(&buf)

		require.NoError(t, enc.Begin())
		require.NoError(t, enc.Encode(map[string]int{"id": 1}))
		require.NoError(t, enc.Encode(map[string]int{"id": 2}))
		require.NoError(t, enc.End())

		var decoded []map[string]int
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 2)
		require.Equal(t, 1, decoded[0]["id"])
		require.Equal(t, 2, decoded[1]["id"])
	})
}

func TestNDJSONEncoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewNDJSONEncoder(&buf)

	require.NoError(t, enc.Begin())
	require.NoError(t, enc.Encode(map[string]int{"id": 1}))
	require.NoError(t, enc.Encode(map[string]int{"id": 2}))
	require.NoError(t, enc.End())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for i, line := range lines {
		var decoded map[string]int
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
		require.Equal(t, i+1, decoded["id"])
	}
}

func TestCBOREncoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewCBOREncoder(&buf)

	require.NoError(t, enc.Begin())
	require.NoError(t, enc.Encode(map[string]int{"id": 1}))
	require.NoError(t, enc.Encode(map[string]int{"id": 2}))
	require.NoError(t, enc.End())

	dec := cbor.NewDecoder(&buf)

	var first, second map[string]int
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	require.Equal(t, 1, first["id"])
	require.Equal(t, 2, second["id"])

	var extra map[string]int
	require.ErrorIs(t, dec.Decode(&extra), io.EOF)
}

func TestHTTPSink(t *testing.T) {
	recorder := httptest.NewRecorder()
	sink := NewHTTPSink(recorder)

	n, err := sink.Write([]byte("payload"))
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.NoError(t, sink.Flush())

	require.True(t, recorder.Flushed)
	require.Equal(t, "payload", recorder.Body.String())
}
