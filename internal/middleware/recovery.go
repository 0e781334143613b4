package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/merchantd/merchantd/pkg/logger"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
)

// Recoverer converts a handler panic into a 500 response instead of tearing
// down the connection. The panic value and stack are logged server-side only.
func Recoverer(l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					l.ErrorWithContext(r.Context(), "recovered a panic",
						zap.Error(fmt.Errorf("%v", p)),
						zap.ByteString("stacktrace", debug.Stack()),
					)
					serverErrors.NewInternalError().WriteResponse(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
