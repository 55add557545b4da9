// Package transport provides HTTP handlers for the verification domain.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/integrity-verifier/internal/auth"
	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/state"
	"github.com/pendergraft/integrity-verifier/internal/storage"
	"github.com/pendergraft/integrity-verifier/internal/verification/domain"
)

// Service defines the verification service interface for HTTP transport.
type Service interface {
	Verify(ctx context.Context, suite *domain.Suite, opts domain.VerifyOptions) (*domain.Summary, error)
}

// ServiceFactory builds a service reading from the artifacts of one request.
type ServiceFactory func(source domain.ArtifactSource) Service

// RunStore is the subset of storage the handler uses.
type RunStore interface {
	CreateRun(ctx context.Context, run *storage.Run) error
	GetRun(ctx context.Context, id string) (*storage.Run, error)
	ListRuns(ctx context.Context, filter storage.RunFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Run], error)
}

// Options bounds the runs a handler accepts.
type Options struct {
	Concurrency  int
	MaxContracts int
	RunTimeout   time.Duration
	Logger       *slog.Logger
}

// Handler handles HTTP requests for verification.
type Handler struct {
	newService ServiceFactory
	runs       RunStore
	hasher     evm.Hasher
	opts       Options
}

// NewHandler creates a new verification HTTP handler. runs may be nil, in
// which case runs are not persisted and the run routes are not registered.
func NewHandler(newService ServiceFactory, runs RunStore, hasher evm.Hasher, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		newService: newService,
		runs:       runs,
		hasher:     hasher,
		opts:       opts,
	}
}

// RegisterRoutes registers the verification routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/verify", h.handleVerify)
	r.Post("/slots/erc7201", h.handleErc7201)
	if h.runs != nil {
		r.Get("/runs", h.handleListRuns)
		r.Get("/runs/{id}", h.handleGetRun)
	}
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	var req VerifyRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	domain.NormalizeNumbers(&req.Suite)

	if h.opts.MaxContracts > 0 && len(req.Suite.Contracts) > h.opts.MaxContracts {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("suite has %d contracts, the limit is %d", len(req.Suite.Contracts), h.opts.MaxContracts))
		return
	}

	source, err := req.Source()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARTIFACT", err.Error())
		return
	}

	ctx := r.Context()
	if h.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RunTimeout)
		defer cancel()
	}

	domain.ApplyDefaultChains(&req.Suite, chains.DefaultRegistry())
	h.opts.Logger.Debug("verification requested",
		"suite", req.Suite.Name,
		"contracts", len(req.Suite.Contracts),
		"key_id", auth.KeyIDFromContext(r.Context()),
	)
	summary, err := h.newService(source).Verify(ctx, &req.Suite, req.Options.ToDomain(h.opts.Concurrency))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSuite):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.Is(err, domain.ErrNoContracts):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "No contracts match the filter")
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "Verification run timed out")
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to run verification")
		}
		return
	}

	resp := VerifyResponse{Summary: summary}
	if h.runs != nil {
		resp.RunID = h.recordRun(r.Context(), req.Suite.Name, summary)
	}
	writeJSON(w, http.StatusOK, resp)
}

// recordRun stores the run and returns its ID, or "" when storing failed
func (h *Handler) recordRun(ctx context.Context, name string, summary *domain.Summary) string {
	raw, err := json.Marshal(summary)
	if err != nil {
		h.opts.Logger.Error("encoding run summary", "error", err)
		return ""
	}
	run := &storage.Run{
		ConfigName: name,
		Total:      summary.Total,
		Passed:     summary.Passed,
		Failed:     summary.Failed,
		Warnings:   summary.Warnings,
		Skipped:    summary.Skipped,
		Summary:    raw,
	}
	if err := h.runs.CreateRun(ctx, run); err != nil {
		h.opts.Logger.Error("storing run", "suite", name, "error", err)
		return ""
	}
	return run.ID
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	result, err := h.runs.ListRuns(r.Context(), storage.RunFilter{
		ConfigName: r.URL.Query().Get("config"),
		Outcome:    r.URL.Query().Get("outcome"),
	}, storage.PaginationParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid cursor")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list runs")
		return
	}

	data := make([]RunItem, len(result.Data))
	for i, run := range result.Data {
		data[i] = RunItemFromStorage(run)
	}

	writeJSON(w, http.StatusOK, ListRunsResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, RunItemFromStorage(*run))
}

func (h *Handler) handleErc7201(w http.ResponseWriter, r *http.Request) {
	var req Erc7201Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Namespace) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "namespace is required")
		return
	}

	writeJSON(w, http.StatusOK, Erc7201Response{
		Namespace: req.Namespace,
		Slot:      state.Erc7201BaseSlot(h.hasher, req.Namespace).Hex(),
	})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
