package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// OwnerIDHeader is set on authenticated requests. Any client supplied value is discarded first.
const OwnerIDHeader = "X-Owner-Id"

type ctxKey int

const ctxKeyClaims ctxKey = iota

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*Claims)
	return c, ok
}

// OwnerID returns the authenticated owner id, or "" for anonymous requests.
func OwnerID(r *http.Request) string {
	if c, ok := ClaimsFromContext(r.Context()); ok {
		return c.Sub
	}
	return ""
}

// RequireOwner rejects requests without a valid HS256 bearer token.
func RequireOwner(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(OwnerIDHeader)

		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := ParseAndVerifyHS256(strings.TrimPrefix(authz, "Bearer "), secret, time.Time{})
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		r.Header.Set(OwnerIDHeader, claims.Sub)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, claims)))
	})
}
