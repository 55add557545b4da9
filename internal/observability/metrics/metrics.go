// Package metrics provides Prometheus instrumentation for the integrity verifier.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Verification domain metrics
	contractVerifyTotal *prometheus.CounterVec
	checkTotal          *prometheus.CounterVec
	runTotal            *prometheus.CounterVec

	// Chain access metrics
	rpcRequestsTotal *prometheus.CounterVec
	rpcDuration      *prometheus.HistogramVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Contract verification outcomes
	contractVerifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contract_verification_total",
			Help: "Total number of contract verifications by outcome",
		},
		[]string{"chain", "outcome"},
	)

	// Individual check outcomes (bytecode, abi, state)
	checkTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_check_total",
			Help: "Total number of verification checks by kind and status",
		},
		[]string{"kind", "status"},
	)

	// Verification runs
	runTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_run_total",
			Help: "Total number of verification runs",
		},
		[]string{"result"},
	)

	// RPC request counter
	rpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_requests_total",
			Help: "Total number of chain RPC requests",
		},
		[]string{"chain", "method", "status"},
	)

	// RPC latency histogram
	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_request_duration_seconds",
			Help:    "Chain RPC latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
