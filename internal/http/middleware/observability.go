package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
)

// Observability records request metrics and writes one access log line per request.
// Upgraded WebSocket connections are recorded when they close.
func Observability(logger logx.Logger, m *metrics.HTTP) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logx.Nop()
	}
	if m == nil {
		m = metrics.NewHTTP()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := pathPattern(r) // bounded label cardinality
			took := time.Since(start)
			code := statusOf(ww.Status(), r)
			status := strconv.Itoa(code)

			m.Requests.WithLabelValues(r.Method, path, status).Inc()
			m.Duration.WithLabelValues(r.Method, path, status).Observe(took.Seconds())

			logger.Info("http request",
				logx.String("method", r.Method),
				logx.String("path", path),
				logx.Int("status", code),
				logx.Duration("duration", took),
				logx.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}

// statusOf fills in the code for responses written outside the wrapper:
// a hijacked upgrade or a handler that wrote nothing.
func statusOf(code int, r *http.Request) int {
	if code != 0 {
		return code
	}
	if websocket.IsWebSocketUpgrade(r) {
		return http.StatusSwitchingProtocols
	}
	return http.StatusOK
}

func pathPattern(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
