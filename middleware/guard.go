package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/MrEthical07/rolecalc/jwt"
)

// Verifier checks a token and returns its claims. *jwt.Issuer satisfies it.
type Verifier interface {
	Verify(token string) (*jwt.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by [Guard].
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return c, ok && c != nil
}

// WithClaims stores c the way [Guard] does. It exists for handler tests.
func WithClaims(ctx context.Context, c *jwt.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

// Guard rejects requests without a valid token with 401. The Authorization
// header may carry the raw token or "Bearer <token>".
func Guard(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
				return
			}

			token, ok := tokenFromHeader(r.Header.Get("Authorization"))
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
				return
			}

			claims, err := v.Verify(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireGroup answers 403 unless the token's group claim holds group. It must
// run behind [Guard].
func RequireGroup(group, message string) func(http.Handler) http.Handler {
	if message == "" {
		message = "Access denied"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !slices.Contains(claims.Roles(), group) {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": message})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFromHeader(value string) (string, bool) {
	value = strings.TrimSpace(value)
	const bearer = "Bearer "
	if len(value) > len(bearer) && strings.EqualFold(value[:len(bearer)], bearer) {
		value = strings.TrimSpace(value[len(bearer):])
	}
	if value == "" {
		return "", false
	}
	return value, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
