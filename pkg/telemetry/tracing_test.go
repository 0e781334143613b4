package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestMustNewTracerProvider(t *testing.T) {
	tp := MustNewTracerProvider(
		WithServiceName("merchantd-test"),
		WithOTLPInsecure(),
		WithSamplingRatio(1),
	)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	spanRecorder := tracetest.NewSpanRecorder()
	tp.RegisterSpanProcessor(spanRecorder)

	_, span := tp.Tracer("").Start(context.Background(), "export")
	span.End()

	spans := spanRecorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "export", spans[0].Name())
}

func TestTraceError(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	_, span := tp.Tracer("").Start(context.Background(), "lookup")
	TraceError(span, errors.New("record not found"))
	span.End()

	spans := spanRecorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, trace.SpanKindInternal, spans[0].SpanKind())
	require.Len(t, spans[0].Events(), 1)
	require.Equal(t, "record not found", spans[0].Status().Description)
}
