package server

import (
	"net/http"
)

// MaxBodySize limits request bodies to limitMB megabytes. Handlers see a
// *http.MaxBytesError when reading past the limit. Zero or less disables it.
func MaxBodySize(limitMB int) func(http.Handler) http.Handler {
	limit := int64(limitMB) * 1024 * 1024
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
