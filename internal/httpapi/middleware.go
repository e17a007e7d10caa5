package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/signalsfoundry/map-overlay/internal/logging"
)

// RequestIDHeader carries the request id in and out of the server.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware reuses an incoming X-Request-ID or mints one, stores
// it on the request context and echoes it on the response.
func RequestIDMiddleware(base logging.Logger) mux.MiddlewareFunc {
	base = logging.OrNoop(base)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if incoming := r.Header.Get(RequestIDHeader); incoming != "" {
				ctx = logging.ContextWithRequestID(ctx, incoming)
			}
			ctx, id := logging.EnsureRequestID(ctx)
			w.Header().Set(RequestIDHeader, id)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			base.Debug(ctx, "request served",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("duration", time.Since(start).String()),
			)
		})
	}
}
