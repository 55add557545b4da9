package domain

import (
	"context"
	"log/slog"
	"time"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	Verify(ctx context.Context, suite *Suite, opts VerifyOptions) (*Summary, error)
}

// LoggingMiddleware returns a service middleware that logs verification runs.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

func (m *loggingMiddleware) Verify(ctx context.Context, suite *Suite, opts VerifyOptions) (*Summary, error) {
	start := time.Now()
	summary, err := m.next.Verify(ctx, suite, opts)
	var name string
	var contracts int
	if suite != nil {
		name, contracts = suite.Name, len(suite.Contracts)
	}
	attrs := []any{
		"suite", name,
		"contracts", contracts,
		"filter_contract", opts.Contract,
		"filter_chain", opts.Chain,
		"duration", time.Since(start),
		"error", err,
	}
	if summary != nil {
		attrs = append(attrs,
			"passed", summary.Passed,
			"failed", summary.Failed,
			"warnings", summary.Warnings,
			"skipped", summary.Skipped,
		)
	}
	m.logger.Info("Verify", attrs...)
	return summary, err
}
