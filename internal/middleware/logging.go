package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/merchantd/merchantd/internal/build"
	"github.com/merchantd/merchantd/pkg/logger"
)

var requestDurationMsHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace:                       build.ProjectName,
	Name:                            "request_duration_ms",
	Help:                            "Time to serve one HTTP request, by route.",
	Buckets:                         []float64{1, 3, 5, 10, 25, 50, 100, 1000, 5000},
	NativeHistogramBucketFactor:     1.1,
	NativeHistogramMaxBucketNumber:  100,
	NativeHistogramMinResetDuration: time.Hour,
}, []string{"method", "route"})

// RequestLoggerOpts tunes the request logging middleware.
type RequestLoggerOpts struct {
	// EnableDurationHistograms observes per-route request durations into the
	// request_duration_ms histogram.
	EnableDurationHistograms bool
}

// RequestLogger logs one line per completed request. Server failures log at
// error level; everything else, cancelled requests included, logs at info.
func RequestLogger(l logger.Logger, opts RequestLoggerOpts) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)

			if opts.EnableDurationHistograms {
				requestDurationMsHistogram.WithLabelValues(r.Method, route).
					Observe(float64(elapsed.Milliseconds()))
			}

			fields := []zap.Field{
				zap.String("http_method", r.Method),
				zap.String("http_path", r.URL.Path),
				zap.String("http_route", route),
				zap.Int("http_status", ww.Status()),
				zap.Int64("query_duration_ms", elapsed.Milliseconds()),
				zap.String("user_agent", r.UserAgent()),
			}
			if id := RequestIDFromContext(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			if spanCtx := trace.SpanContextFromContext(r.Context()); spanCtx.TraceID().IsValid() {
				fields = append(fields, zap.String("trace_id", spanCtx.TraceID().String()))
			}

			if ww.Status() >= http.StatusInternalServerError {
				l.ErrorWithContext(r.Context(), "request failed", fields...)
				return
			}
			l.InfoWithContext(r.Context(), "request completed", fields...)
		})
	}
}
