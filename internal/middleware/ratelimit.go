package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/merchantd/merchantd/internal/ratelimit"
	"github.com/merchantd/merchantd/pkg/logger"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
)

const (
	userIDHeader = "X-User-Id"
	apiKeyHeader = "X-Api-Key"
)

// PartitionExtractor derives the rate-limit partition key for a request.
type PartitionExtractor func(r *http.Request) string

// NewPartitionExtractor builds the extractor for the configured partition
// source. Each source falls back down the chain when its credential is
// absent, ending at the client IP, so anonymous traffic still partitions.
func NewPartitionExtractor(partitionBy string) PartitionExtractor {
	switch partitionBy {
	case "user":
		return func(r *http.Request) string {
			if user := r.Header.Get(userIDHeader); user != "" {
				return "user:" + user
			}
			if key := r.Header.Get(apiKeyHeader); key != "" {
				return "api-key:" + key
			}
			return "ip:" + clientIP(r)
		}
	case "api-key":
		return func(r *http.Request) string {
			if key := r.Header.Get(apiKeyHeader); key != "" {
				return "api-key:" + key
			}
			return "ip:" + clientIP(r)
		}
	default:
		return func(r *http.Request) string {
			return "ip:" + clientIP(r)
		}
	}
}

// clientIP strips the port from RemoteAddr. The RealIP middleware has
// already folded any forwarding headers into RemoteAddr by the time this
// runs.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit gates a route group behind the fixed-window limiter. Rejected
// requests get a 429 with a Retry-After hint; queued requests sleep in their
// own goroutine until their reserved window opens or the client goes away.
func RateLimit(limiter *ratelimit.Limiter, partition PartitionExtractor, l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admission := limiter.TryAdmit(partition(r))

			switch admission.Decision {
			case ratelimit.DecisionRejected:
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(admission)))
				serverErrors.NewEncodedError(
					http.StatusTooManyRequests,
					"rate_limit_exceeded",
					"rate limit exceeded",
				).WriteResponse(w)
				return
			case ratelimit.DecisionQueued:
				if err := admission.Wait(r.Context()); err != nil {
					// The client gave up while queued; the reserved slot
					// simply goes unused.
					l.InfoWithContext(r.Context(), "queued request abandoned", zap.Error(err))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(a ratelimit.Admission) int {
	secs := int(math.Ceil(a.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
