// Package trace logs and counts every HTTP request once it completes.
package trace

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	applog "winterstorm/internal/log"
	"winterstorm/internal/metrics"
)

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *applog.StructuredLogger
	metrics   *metrics.Metrics
}

// NewMiddleware creates a trace middleware. m may be nil.
func NewMiddleware(logger *applog.Logger, m *metrics.Metrics, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		logger:    applog.NewStructuredLogger(logger),
		metrics:   m,
	}
}

// Handler must run inside chi's RequestID middleware so the request id is
// set, and inside the router so the route pattern is known afterwards.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := RoutePattern(r)
		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		ctx := r.Context()
		sl := m.logger
		if l, ok := ctx.Value(applog.LoggerContextKey).(*applog.Logger); ok {
			sl = applog.NewStructuredLogger(l)
		}
		sl.LogHTTPEnd(ctx, r, route, status, time.Since(start).Milliseconds(), clientIP)
		m.metrics.ObserveRequest(r.Method, route, status)
	})
}

// RoutePattern returns the matched chi route, or "unmatched" so unknown
// paths do not explode metric cardinality.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
