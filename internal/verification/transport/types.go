// Package transport provides HTTP request/response types for the verification domain.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/state"
	"github.com/pendergraft/integrity-verifier/internal/storage"
	"github.com/pendergraft/integrity-verifier/internal/verification/domain"
)

// VerifyRequest is the HTTP request body for a verification run. Artifacts
// and schemas are keyed by the artifactFile and schemaFile the suite's
// contracts reference.
type VerifyRequest struct {
	Suite     domain.Suite               `json:"suite"`
	Artifacts map[string]json.RawMessage `json:"artifacts"`
	Schemas   map[string]json.RawMessage `json:"schemas,omitempty"`
	Options   VerifyOptions              `json:"options,omitempty"`
}

// VerifyOptions mirrors the CLI flags of a run.
type VerifyOptions struct {
	Contract     string `json:"contract,omitempty"`
	Chain        string `json:"chain,omitempty"`
	SkipBytecode bool   `json:"skipBytecode,omitempty"`
	SkipABI      bool   `json:"skipAbi,omitempty"`
	SkipState    bool   `json:"skipState,omitempty"`
}

// ToDomain converts VerifyOptions to domain.VerifyOptions.
func (o VerifyOptions) ToDomain(concurrency int) domain.VerifyOptions {
	return domain.VerifyOptions{
		Contract:     o.Contract,
		Chain:        o.Chain,
		SkipBytecode: o.SkipBytecode,
		SkipABI:      o.SkipABI,
		SkipState:    o.SkipState,
		Concurrency:  concurrency,
	}
}

// Source parses the inline artifacts and schemas.
func (r VerifyRequest) Source() (domain.StaticSource, error) {
	src := domain.StaticSource{
		Artifacts: make(map[string]*evm.Artifact, len(r.Artifacts)),
		Schemas:   make(map[string]*state.Schema, len(r.Schemas)),
	}
	for name, raw := range r.Artifacts {
		a, err := evm.ParseArtifact(raw)
		if err != nil {
			return domain.StaticSource{}, fmt.Errorf("artifact %s: %w", name, err)
		}
		src.Artifacts[name] = a
	}
	for name, raw := range r.Schemas {
		sc, err := state.ParseSchema(raw)
		if err != nil {
			return domain.StaticSource{}, fmt.Errorf("schema %s: %w", name, err)
		}
		src.Schemas[name] = sc
	}
	return src, nil
}

// VerifyResponse is the response for a verification run.
type VerifyResponse struct {
	RunID   string          `json:"runId,omitempty"`
	Summary *domain.Summary `json:"summary"`
}

// RunItem is a stored run. Summary is only set when fetching a single run.
type RunItem struct {
	ID         string          `json:"id"`
	ConfigName string          `json:"configName"`
	Outcome    string          `json:"outcome"`
	Total      int             `json:"total"`
	Passed     int             `json:"passed"`
	Failed     int             `json:"failed"`
	Warnings   int             `json:"warnings"`
	Skipped    int             `json:"skipped"`
	CreatedAt  time.Time       `json:"createdAt"`
	Summary    json.RawMessage `json:"summary,omitempty"`
}

// RunItemFromStorage converts a stored run.
func RunItemFromStorage(r storage.Run) RunItem {
	item := RunItem{
		ID:         r.ID,
		ConfigName: r.ConfigName,
		Outcome:    r.Outcome,
		Total:      r.Total,
		Passed:     r.Passed,
		Failed:     r.Failed,
		Warnings:   r.Warnings,
		Skipped:    r.Skipped,
		CreatedAt:  r.CreatedAt,
	}
	if len(r.Summary) > 0 {
		item.Summary = json.RawMessage(r.Summary)
	}
	return item
}

// ListRunsResponse is the response for listing runs.
type ListRunsResponse struct {
	Data       []RunItem  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor"`
}

// Erc7201Request asks for the base slot of a namespace.
type Erc7201Request struct {
	Namespace string `json:"namespace"`
}

// Erc7201Response carries the computed slot.
type Erc7201Response struct {
	Namespace string `json:"namespace"`
	Slot      string `json:"slot"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
