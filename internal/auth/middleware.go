// Package auth protects the verification API with static API keys.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Context key type for avoiding collisions
type contextKey string

const keyIDContextKey contextKey = "apiKeyID"

// KeyIDFromContext returns the KeyID of the caller's API key, or "".
func KeyIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(keyIDContextKey).(string)
	return id
}

// keyFromRequest reads X-API-Key, falling back to a bearer token
func keyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return bearer
	}
	return ""
}

// Middleware returns an HTTP middleware that requires a key from keys. An
// empty set disables authentication.
func Middleware(keys KeySet, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := keyFromRequest(r)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}

			if !keys.Valid(apiKey) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), keyIDContextKey, KeyID(apiKey))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
