package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const contextKeyOwner contextKey = "owner"

// TokenCookie carries the bearer token for browser requests to the ledger page.
const TokenCookie = "kicho_token"

// AuthMiddleware resolves the owner from the Authorization bearer token.
// Requests without a known token are rejected with 401.
func AuthMiddleware(tokens map[string]string) func(http.Handler) http.Handler {
	return authenticate(tokens, headerToken)
}

// CookieAuthMiddleware is AuthMiddleware that also accepts the TokenCookie.
// It is only mounted on the read-only ledger page. The cookie must never
// authorize a write.
func CookieAuthMiddleware(tokens map[string]string) func(http.Handler) http.Handler {
	return authenticate(tokens, func(r *http.Request) (string, bool) {
		if r.Header.Get("Authorization") != "" {
			return headerToken(r)
		}
		if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
			return c.Value, true
		}
		return "", false
	})
}

func authenticate(tokens map[string]string, extract func(*http.Request) (string, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extract(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="kicho"`)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or malformed Authorization header")
				return
			}

			owner := lookupOwner(tokens, token)
			if owner == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="kicho", error="invalid_token"`)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyOwner, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func headerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// lookupOwner visits every token and compares in constant time.
func lookupOwner(tokens map[string]string, token string) string {
	owner := ""
	for t, o := range tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			owner = o
		}
	}
	return owner
}

// OwnerFromContext returns the owner resolved by AuthMiddleware.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(contextKeyOwner).(string)
	return owner
}
