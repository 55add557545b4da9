// Package ratelimit throttles verification runs per client with a token bucket.
// Each run fans out to many RPC calls, so only the routes that start runs
// are limited.
package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the configuration for rate limiting
type Config struct {
	Enabled bool
	// RequestsPerMin is the sustained number of limited requests per client
	RequestsPerMin int
	BurstSize      int
	// IdleTTL drops clients not seen for this long. Defaults to 10 minutes.
	IdleTTL time.Duration
	// Paths are the path suffixes that are limited. Empty limits every path.
	Paths []string
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client address
type Limiter struct {
	cfg     Config
	rate    rate.Limit
	now     func() time.Time
	mu      sync.Mutex
	clients map[string]*client
	stop    chan struct{}
	once    sync.Once
}

// New creates a Limiter and starts its idle-client sweeper
func New(cfg Config) *Limiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	l := &Limiter{
		cfg:     cfg,
		rate:    rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		now:     time.Now,
		clients: make(map[string]*client),
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Stop ends the sweeper. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.cfg.IdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.cfg.IdleTTL)
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.cfg.BurstSize)}
		l.clients[key] = c
	}
	c.lastSeen = l.now()
	return c.limiter
}

// Allow takes a token for key, or returns how long until one is available
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	res := l.limiterFor(key).ReserveN(l.now(), 1)
	if !res.OK() {
		return false, time.Minute
	}
	delay := res.DelayFrom(l.now())
	if delay > 0 {
		res.CancelAt(l.now())
		return false, delay
	}
	return true, 0
}

func (l *Limiter) limited(path string) bool {
	if len(l.cfg.Paths) == 0 {
		return true
	}
	for _, p := range l.cfg.Paths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// Middleware rejects limited requests over budget with 429 and a Retry-After header
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.limited(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := l.Allow(ClientKey(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Too many verification runs. Please try again later.",
				},
			})
		})
	}
}

// ClientKey is the host part of RemoteAddr. Behind a proxy, run chi's
// RealIP middleware first so RemoteAddr carries the client address.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware builds a Limiter from cfg, or a pass-through when disabled.
// The sweeper runs for the lifetime of the process.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return New(cfg).Middleware()
}
