// Package requesttime seeds the request-scoped clock and request id that
// command handlers stamp onto events.
package requesttime

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"courier/pkg/requestcontext"
)

// Middleware captures the current time once per request, so every event a
// request appends shares one created_at base. It must run after chi's
// RequestID middleware.
func Middleware(next http.Handler) http.Handler {
	return MiddlewareWithClock(time.Now)(next)
}

// MiddlewareWithClock is Middleware with an injected clock.
func MiddlewareWithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now())
			if id := chimw.GetReqID(ctx); id != "" {
				ctx = requestcontext.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
