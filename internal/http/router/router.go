package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"courier-dispatch/internal/http/handlers"
	obs "courier-dispatch/internal/http/middleware"
	"courier-dispatch/internal/http/middleware/ratelimit"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/metrics"
)

const requestTimeout = 5 * time.Second

// Deps are the handlers and middleware mounted by New.
type Deps struct {
	Logger      logx.Logger
	HTTPMetrics *metrics.HTTP
	Base        *handlers.Handlers
	Presence    *handlers.PresenceHandler
	WS          http.Handler
	RateLimit   *ratelimit.Middleware // guards the upgrade endpoint; nil disables
	Metrics     http.Handler          // nil leaves /metrics unmounted

	// TrustProxyHeaders rewrites RemoteAddr from X-Forwarded-For / X-Real-IP.
	// Clients control those headers, so enable it only behind a proxy that
	// overwrites them; otherwise the per-IP limit keys on the peer address.
	TrustProxyHeaders bool
}

// New constructs the chi router. Long-lived /ws connections are kept out of
// the request timeout group.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if d.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(obs.Observability(d.Logger, d.HTTPMetrics))
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/ping", d.Base.Ping)
		r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(d.Base.HealthcheckHead))
		r.Get("/presence", d.Presence.List)
		r.Get("/presence/{courierId}", d.Presence.Get)
		if d.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", d.Metrics)
		}
	})

	r.Group(func(r chi.Router) {
		if d.RateLimit != nil {
			r.Use(d.RateLimit.Handler())
		}
		r.Method(http.MethodGet, "/ws", d.WS)
	})

	r.NotFound(http.HandlerFunc(d.Base.NotFound))

	return r
}
