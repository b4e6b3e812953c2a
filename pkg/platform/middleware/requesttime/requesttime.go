// Package requesttime stamps each request with a single "now" so every
// timestamp written while serving it agrees.
package requesttime

import (
	"net/http"

	"gatepass/pkg/platform/clock"
	"gatepass/pkg/requestcontext"
)

// Middleware captures the current system time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return WithClock(clock.Real())(next)
}

// WithClock captures the request time from c.
func WithClock(c clock.Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), c.Now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
