package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// routes are the fixed route labels; anything else is reported as "other"
var routes = map[string]string{
	"/health":               "/health",
	"/healthz":              "/healthz",
	"/readyz":               "/readyz",
	"/metrics":              "/metrics",
	"/api/v1/verify":        "/api/v1/verify",
	"/api/v1/slots/erc7201": "/api/v1/slots/erc7201",
	"/api/v1/runs":          "/api/v1/runs",
	"/api/v1/chains":        "/api/v1/chains",
}

const runsPrefix = "/api/v1/runs/"

// Middleware records request counts and latency per route.
func Middleware(next http.Handler) http.Handler {
	if !enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			route := routeLabel(r.URL.Path)
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
			httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(rw, r)
	})
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// routeLabel maps a request path onto the verifier's routes so labels stay
// bounded whatever clients send. Run IDs collapse to /api/v1/runs/{id}.
func routeLabel(path string) string {
	path = strings.TrimSuffix(path, "/")
	if route, ok := routes[path]; ok {
		return route
	}
	if id, ok := strings.CutPrefix(path, runsPrefix); ok && id != "" && !strings.Contains(id, "/") {
		return runsPrefix + "{id}"
	}
	return "other"
}
