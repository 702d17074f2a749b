package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/homevault/twofactor/pkg/slogx"
)

// AuthnMiddleware verifies the Bearer token minted by the main platform and
// injects the account ID (token subject) and scopes into the request context.
// Tokens are HS256-signed with a secret shared with the platform.
func AuthnMiddleware(secret []byte, issuer string) Middleware {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			var claims platformClaims
			if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return secret, nil
			}); err != nil {
				log.Warn("jwt verify failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}
			if claims.Subject == "" {
				writeBearerError(w, "token missing subject")
				return
			}

			ctx = context.WithValue(ctx, CtxKeyAccountID, claims.Subject)
			ctx = context.WithValue(ctx, CtxKeyScopes, strings.Fields(claims.Scope))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type platformClaims struct {
	jwt.RegisteredClaims

	Scope string `json:"scope,omitempty"` // space-delimited
}

// RequireAnyScope rejects requests whose token carries none of the provided
// scopes.
func RequireAnyScope(required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, s := range required {
		want[s] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, s := range scopesFromCtx(r.Context()) {
				if _, ok := want[s]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeBearerScopeError(w, required...)
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}

func writeBearerScopeError(w http.ResponseWriter, required ...string) {
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("insufficient_scope"))
}
