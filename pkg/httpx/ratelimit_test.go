package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/homevault/twofactor/pkg/httpx"
)

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")

		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Real-IP", "203.0.113.2")

		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))
	})
}

func TestAccountKeyExtractor(t *testing.T) {
	t.Run("reads the authenticated account", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := context.WithValue(req.Context(), httpx.CtxKeyAccountID, "acct-1")

		require.Equal(t, "acct-1", httpx.AccountKeyExtractor(req.WithContext(ctx)))
	})

	t.Run("empty for unauthenticated requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		require.Empty(t, httpx.AccountKeyExtractor(req))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	extractor := httpx.CompositeKeyExtractor(":",
		httpx.AccountKeyExtractor,
		httpx.IPKeyExtractor,
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	ctx := context.WithValue(req.Context(), httpx.CtxKeyAccountID, "acct-1")

	require.Equal(t, "acct-1:192.168.1.1", extractor(req.WithContext(ctx)))
	// Empty parts are skipped rather than joined.
	require.Equal(t, "192.168.1.1", extractor(req))
}

func TestRateLimitMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows requests within the limit", func(t *testing.T) {
		mw := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 5,
			Window:            time.Minute,
			Burst:             5,
		}, httpx.IPKeyExtractor)

		handler := mw(okHandler)
		for range 5 {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:1000"
			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("rejects over-limit requests with Retry-After", func(t *testing.T) {
		mw := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 2,
			Window:            time.Minute,
			Burst:             2,
		}, httpx.IPKeyExtractor)

		handler := mw(okHandler)
		req := func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = "10.0.0.2:1000"
			return r
		}

		for range 2 {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req())
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req())
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("keys are isolated from each other", func(t *testing.T) {
		mw := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		}, httpx.IPKeyExtractor)

		handler := mw(okHandler)

		recA := httptest.NewRecorder()
		reqA := httptest.NewRequest(http.MethodGet, "/", nil)
		reqA.RemoteAddr = "10.0.0.3:1000"
		handler.ServeHTTP(recA, reqA)
		require.Equal(t, http.StatusOK, recA.Code)

		// Second hit from the same IP is limited...
		recA2 := httptest.NewRecorder()
		handler.ServeHTTP(recA2, reqA)
		require.Equal(t, http.StatusTooManyRequests, recA2.Code)

		// ...but a different IP still gets through.
		recB := httptest.NewRecorder()
		reqB := httptest.NewRequest(http.MethodGet, "/", nil)
		reqB.RemoteAddr = "10.0.0.4:1000"
		handler.ServeHTTP(recB, reqB)
		require.Equal(t, http.StatusOK, recB.Code)
	})

	t.Run("unextractable keys are allowed", func(t *testing.T) {
		mw := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		}, httpx.AccountKeyExtractor)

		handler := mw(okHandler)
		for range 3 {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestParseRateLimitFromEnv(t *testing.T) {
	defaults := httpx.RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	t.Run("keeps defaults when unset", func(t *testing.T) {
		require.Equal(t, defaults, httpx.ParseRateLimitFromEnv("TESTPROFILE", defaults))
	})

	t.Run("reads overrides", func(t *testing.T) {
		t.Setenv("RATELIMIT_TESTPROFILE_REQUESTS", "10")
		t.Setenv("RATELIMIT_TESTPROFILE_WINDOW_SEC", "30")
		t.Setenv("RATELIMIT_TESTPROFILE_BURST", "15")

		cfg := httpx.ParseRateLimitFromEnv("TESTPROFILE", defaults)
		require.Equal(t, 10, cfg.RequestsPerWindow)
		require.Equal(t, 30*time.Second, cfg.Window)
		require.Equal(t, 15, cfg.Burst)
	})

	t.Run("ignores unparsable values", func(t *testing.T) {
		os.Setenv("RATELIMIT_TESTPROFILE_REQUESTS", "not-a-number")
		defer os.Unsetenv("RATELIMIT_TESTPROFILE_REQUESTS")

		require.Equal(t, defaults, httpx.ParseRateLimitFromEnv("TESTPROFILE", defaults))
	})
}
