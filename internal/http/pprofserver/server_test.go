package pprofserver

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	testlog "courier-dispatch/internal/testutil"
)

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestAuthOrLocalOnly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		cfg    Config
		remote string
		auth   string
		want   int
	}{
		{name: "loopback without auth", remote: "127.0.0.1:12345", want: http.StatusTeapot},
		{name: "remote, no creds configured", remote: "8.8.8.8:54444", auth: basic("", ""), want: http.StatusUnauthorized},
		{name: "remote, wrong creds", cfg: Config{User: "u", Pass: "p"}, remote: "8.8.8.8:54444", auth: basic("u", "WRONG"), want: http.StatusUnauthorized},
		{name: "remote, missing creds", cfg: Config{User: "u", Pass: "p"}, remote: "8.8.8.8:54444", want: http.StatusUnauthorized},
		{name: "remote, correct creds", cfg: Config{User: "u", Pass: "p"}, remote: "8.8.8.8:54444", auth: basic("u", "p"), want: http.StatusTeapot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := testlog.New()
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
			h := authOrLocalOnly(tc.cfg, rec.Logger())(next)

			req := httptest.NewRequest(http.MethodGet, "http://example/debug/pprof/", nil)
			req.RemoteAddr = tc.remote
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			require.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusUnauthorized {
				require.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))
				require.True(t, rec.Has("warn", "pprof access denied"))
			}
		})
	}
}

func TestHandler_ServesProfilesToLoopback(t *testing.T) {
	t.Parallel()

	h := Handler(Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "http://example/debug/pprof/cmdline", nil)
	req.RemoteAddr = "127.0.0.1:1"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "http://example/debug/pprof/cmdline", nil)
	req.RemoteAddr = "10.1.1.1:1"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNew_UsesConfiguredAddr(t *testing.T) {
	t.Parallel()

	srv := New(Config{Addr: "127.0.0.1:6060"}, nil)
	require.Equal(t, "127.0.0.1:6060", srv.Addr)
	require.NotNil(t, srv.Handler)
}

func TestIsLoopback(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"127.0.0.1:123": true,
		"127.0.0.1":     true,
		" 127.0.0.1 ":   true,
		"[::1]:123":     true,
		"8.8.8.8:1":     false,
		"not-an-ip:1":   false,
	}
	for in, want := range cases {
		require.Equal(t, want, isLoopback(in), in)
	}
}

func TestSecureEq(t *testing.T) {
	t.Parallel()

	require.False(t, secureEq("a", "ab"))
	require.True(t, secureEq("abc", "abc"))
	require.False(t, secureEq("abc", "abd"))
}
