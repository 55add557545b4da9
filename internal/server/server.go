// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/integrity-verifier/internal/auth"
	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/rpc"
	"github.com/pendergraft/integrity-verifier/internal/config"
	"github.com/pendergraft/integrity-verifier/internal/middleware/logging"
	"github.com/pendergraft/integrity-verifier/internal/middleware/ratelimit"
	"github.com/pendergraft/integrity-verifier/internal/observability/metrics"
	"github.com/pendergraft/integrity-verifier/internal/storage"
	verificationDomain "github.com/pendergraft/integrity-verifier/internal/verification/domain"
	verificationTransport "github.com/pendergraft/integrity-verifier/internal/verification/transport"
)

// ErrRPCNotConfigured is returned for chains the server has no endpoint for
var ErrRPCNotConfigured = errors.New("no RPC URL configured")

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	dial   verificationDomain.Dialer
	hasher evm.Hasher
}

// Option customizes a Server
type Option func(*Server)

// WithDialer replaces the RPC dialer, for tests and alternative transports
func WithDialer(d verificationDomain.Dialer) Option {
	return func(s *Server) { s.dial = d }
}

// New creates a new server. store may be nil, in which case runs are not persisted.
func New(cfg *config.Config, store storage.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
		hasher: rpc.NewCrypto(),
	}
	s.dial = rpc.Dialer(
		rpc.WithRateLimit(cfg.RPC.RequestsPerSecond, cfg.RPC.Burst),
		rpc.WithTimeout(cfg.RPC.Timeout),
		rpc.WithLogger(logger),
	)
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

// newService builds a verification service over one request's artifacts.
func (s *Server) newService(source verificationDomain.ArtifactSource) verificationTransport.Service {
	dial := func(ctx context.Context, c chains.Config) (chains.Adapter, error) {
		url, err := s.rpcURL(c)
		if err != nil {
			return nil, err
		}
		c.RPCURL = url
		return s.dial(ctx, c)
	}
	svc := verificationDomain.NewService(dial, source, s.hasher, s.logger)
	return verificationDomain.LoggingMiddleware(s.logger)(svc)
}

// rpcURL picks the endpoint for a chain of a submitted suite. RPC_URL_<CHAIN>
// wins, then the suite's own URL when AllowRequestURLs is set, then the
// well-known chain's public endpoint.
func (s *Server) rpcURL(c chains.Config) (string, error) {
	if url := s.cfg.RPC.URLFor(c.Name, ""); url != "" {
		return url, nil
	}
	if s.cfg.RPC.AllowRequestURLs && c.RPCURL != "" {
		return c.RPCURL, nil
	}
	if known, ok := chains.DefaultRegistry().Get(c.Name); ok && known.RPCURL != "" {
		return known.RPCURL, nil
	}
	env := "RPC_URL_" + strings.ToUpper(strings.ReplaceAll(c.Name, "-", "_"))
	return "", fmt.Errorf("%w for chain %s: set %s", ErrRPCNotConfigured, c.Name, env)
}

func (s *Server) setupMiddleware() {
	// Order matters: RealIP rewrites RemoteAddr before logging and rate limiting read it.
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MaxBodySize(s.cfg.Server.MaxBodySizeMB))

	// Only runs are throttled; they fan out to RPC calls
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		IdleTTL:        time.Duration(s.cfg.RateLimit.CleanupMinutes) * time.Minute,
		Paths:          []string{"/verify"},
	}))

	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	if s.cfg.Metrics.Enabled && s.cfg.Metrics.Port == 0 {
		s.router.Handle("/metrics", s.MetricsHandler())
	}

	var runs verificationTransport.RunStore
	if s.store != nil {
		runs = s.store
	}
	verificationHandler := verificationTransport.NewHandler(s.newService, runs, s.hasher, verificationTransport.Options{
		Concurrency:  s.cfg.Verify.Concurrency,
		MaxContracts: s.cfg.Verify.MaxContracts,
		RunTimeout:   s.cfg.Verify.RunTimeout,
		Logger:       s.logger,
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(auth.NewKeySet(s.cfg.Auth.APIKeyHashes), writeError))
		verificationHandler.RegisterRoutes(r)
		r.Get("/chains", s.handleChains)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports ready once the run store answers
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", "Storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// chainInfo is a well-known chain with its effective RPC endpoint
type chainInfo struct {
	Name     string `json:"name"`
	ChainID  uint64 `json:"chainId"`
	RPCURL   string `json:"rpcUrl"`
	Explorer string `json:"explorerUrl,omitempty"`
}

// handleChains lists the chains suites may reference without declaring
func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	list := chains.DefaultRegistry().List()
	out := make([]chainInfo, len(list))
	for i, c := range list {
		out[i] = chainInfo{
			Name:     c.Name,
			ChainID:  c.ChainID,
			RPCURL:   s.cfg.RPC.URLFor(c.Name, c.RPCURL),
			Explorer: c.Explorer,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
