package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/logx"
	testlog "courier-dispatch/internal/testutil"
)

type stubLimiter struct {
	allow bool
}

func (s stubLimiter) Allow(string) bool { return s.allow }

func TestMiddleware_Allows_RequestPassesToNext(t *testing.T) {
	t.Parallel()

	nextCalled := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled++
		w.WriteHeader(http.StatusOK)
	})

	h := New(logx.Nop(), nil, stubLimiter{allow: true}).Handler()(next)

	r := httptest.NewRequest(http.MethodGet, "http://example/ws", nil)
	r.RemoteAddr = "1.2.3.4:5678"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, nextCalled)
}

func TestMiddleware_Blocks_Returns429AndIncrementsCounter(t *testing.T) {
	t.Parallel()

	nextCalled := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled++
	})

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_denied_total",
		Help: "denied requests",
	})
	rec := testlog.New()

	h := New(rec.Logger(), counter, stubLimiter{allow: false}).Handler()(next)

	r := httptest.NewRequest(http.MethodGet, "http://example/ws", nil)
	r.RemoteAddr = "1.2.3.4:5678"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, 0, nextCalled)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Equal(t, "1", w.Header().Get("Retry-After"))
	require.Equal(t, `{"error":"too many requests"}`, w.Body.String())
	require.Equal(t, float64(1), testutil.ToFloat64(counter))
	require.True(t, rec.Has("warn", "rate limit exceeded"))
}

func TestMiddleware_NilLimiterAllowsEverything(t *testing.T) {
	t.Parallel()

	h := New(nil, nil, nil).Handler()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/ws", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestMiddleware_WithKeyedLimiter_LimitsPerIP(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Unix(1000, 0))
	limiter := NewKeyedLimiter(clk, Config{Rate: 1, Burst: 1})
	h := New(logx.Nop(), nil, limiter).Handler()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) int {
		r := httptest.NewRequest(http.MethodGet, "http://example/ws", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	require.Equal(t, http.StatusOK, do("1.1.1.1:1000"))
	require.Equal(t, http.StatusTooManyRequests, do("1.1.1.1:2000"), "same ip, other port")
	require.Equal(t, http.StatusOK, do("2.2.2.2:1000"))

	clk.Add(time.Second)
	require.Equal(t, http.StatusOK, do("1.1.1.1:1000"))
}
