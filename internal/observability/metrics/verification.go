// Package metrics provides Prometheus instrumentation for the integrity verifier.
package metrics

import "time"

// ContractVerified records the outcome of one contract verification.
func ContractVerified(chain, outcome string) {
	if !enabled {
		return
	}
	contractVerifyTotal.WithLabelValues(chain, outcome).Inc()
}

// CheckCompleted records the status of a bytecode, abi or state check.
func CheckCompleted(kind, status string) {
	if !enabled {
		return
	}
	checkTotal.WithLabelValues(kind, status).Inc()
}

// RunCompleted records a finished verification run.
func RunCompleted(result string) {
	if !enabled {
		return
	}
	runTotal.WithLabelValues(result).Inc()
}

// RPCRequest records one chain RPC call and its latency.
func RPCRequest(chain, method string, err error, elapsed time.Duration) {
	if !enabled {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	rpcRequestsTotal.WithLabelValues(chain, method, status).Inc()
	rpcDuration.WithLabelValues(chain, method).Observe(elapsed.Seconds())
}
