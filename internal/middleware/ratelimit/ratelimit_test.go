package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func send(h http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLimiter_BurstThenReject(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 2})
	defer l.Stop()
	h := l.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, send(h, "/api/v1/verify", "192.168.1.100:1234").Code)
	assert.Equal(t, http.StatusOK, send(h, "/api/v1/verify", "192.168.1.100:5678").Code)

	rr := send(h, "/api/v1/verify", "192.168.1.100:1234")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"]["code"])

	assert.Equal(t, http.StatusOK, send(h, "/api/v1/verify", "192.168.1.101:1234").Code, "other clients keep their budget")
}

func TestLimiter_OnlyConfiguredPaths(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 1, BurstSize: 1, Paths: []string{"/verify"}})
	defer l.Stop()
	h := l.Middleware()(okHandler())

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, send(h, "/api/v1/runs", "10.0.0.1:1").Code)
		assert.Equal(t, http.StatusOK, send(h, "/health", "10.0.0.1:1").Code)
	}
	assert.Equal(t, http.StatusOK, send(h, "/api/v1/verify", "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(h, "/api/v1/verify", "10.0.0.1:1").Code)
}

func TestLimiter_Refills(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1})
	defer l.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("a")
	assert.True(t, ok)

	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	now = now.Add(time.Second)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestLimiter_ZeroRate(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 0, BurstSize: 1})
	defer l.Stop()

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, wait)
}

func TestMiddleware_Disabled(t *testing.T) {
	h := Middleware(Config{Enabled: false, RequestsPerMin: 1, BurstSize: 1})(okHandler())
	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, send(h, "/api/v1/verify", "192.168.1.100:1").Code)
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 5, IdleTTL: time.Minute})
	defer l.Stop()
	now := time.Now()
	l.now = func() time.Time { return now }

	l.limiterFor("stale")
	now = now.Add(2 * time.Minute)
	l.limiterFor("fresh")
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "stale")
	assert.Contains(t, l.clients, "fresh")
}

func TestLimiter_Concurrent(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 6000, BurstSize: 100})
	defer l.Stop()
	h := l.Middleware()(okHandler())

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				send(h, "/api/v1/verify", "192.168.1.100:1")
			}
		}()
	}
	wg.Wait()
	l.Stop()
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ClientKey(req))

	req.RemoteAddr = "203.0.113.50"
	assert.Equal(t, "203.0.113.50", ClientKey(req))
}
