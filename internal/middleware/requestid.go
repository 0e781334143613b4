package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader is the HTTP header set on each response. The value is
// unique per request.
const RequestIDHeader = "X-Request-Id"

type requestIDCtxKey struct{}

// initRequestID returns the id identifying the request. If a trace is
// recording, the trace id is reused so logs and spans correlate; otherwise a
// fresh UUID is generated.
func initRequestID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.TraceID().IsValid() {
		return spanCtx.TraceID().String()
	}
	return uuid.NewString()
}

// RequestID stamps every request with an id, exposed to handlers via
// [RequestIDFromContext] and to clients via the X-Request-Id header. It must
// come after the trace middleware and before the logging middleware.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := initRequestID(r.Context())

		w.Header().Set(RequestIDHeader, id)
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("request_id", id))

		ctx := context.WithValue(r.Context(), requestIDCtxKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id stamped by [RequestID], or "" when the
// middleware did not run.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}
