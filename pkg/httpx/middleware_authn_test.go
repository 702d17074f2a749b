package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/homevault/twofactor/pkg/httpx"
)

var authnSecret = []byte("unit-test-secret")

const authnIssuer = "homevault-platform"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(authnSecret)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   authnIssuer,
		"sub":   "acct-1",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": "2fa:read 2fa:write",
	}
}

func TestAuthnMiddleware(t *testing.T) {
	var gotAccount string
	handler := httpx.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAccount = httpx.AccountIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}),
		httpx.AuthnMiddleware(authnSecret, authnIssuer),
	)

	do := func(authorization string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("accepts a valid token and injects the account", func(t *testing.T) {
		rec := do("Bearer " + signToken(t, validClaims()))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "acct-1", gotAccount)
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		rec := do("")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("rejects non-bearer schemes", func(t *testing.T) {
		rec := do("Basic dXNlcjpwYXNz")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a bad signature", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
		signed, err := token.SignedString([]byte("wrong-secret"))
		require.NoError(t, err)

		rec := do("Bearer " + signed)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		claims := validClaims()
		claims["exp"] = time.Now().Add(-time.Minute).Unix()

		rec := do("Bearer " + signToken(t, claims))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a wrong issuer", func(t *testing.T) {
		claims := validClaims()
		claims["iss"] = "someone-else"

		rec := do("Bearer " + signToken(t, claims))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects tokens without a subject", func(t *testing.T) {
		claims := validClaims()
		delete(claims, "sub")

		rec := do("Bearer " + signToken(t, claims))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects the none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims())
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		rec := do("Bearer " + signed)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAnyScope(t *testing.T) {
	handler := httpx.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		httpx.AuthnMiddleware(authnSecret, authnIssuer),
		httpx.RequireAnyScope("2fa:write"),
	)

	do := func(scope string) *httptest.ResponseRecorder {
		claims := validClaims()
		claims["scope"] = scope

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, claims))
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("passes with the required scope", func(t *testing.T) {
		require.Equal(t, http.StatusOK, do("2fa:read 2fa:write").Code)
	})

	t.Run("rejects without it", func(t *testing.T) {
		rec := do("2fa:read")
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")
	})

	t.Run("rejects empty scope", func(t *testing.T) {
		require.Equal(t, http.StatusForbidden, do("").Code)
	})
}
