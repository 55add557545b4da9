package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/state"
	"github.com/pendergraft/integrity-verifier/internal/observability/metrics"
)

// Common errors returned by the verification service.
var (
	ErrNoBytecode   = errors.New("no bytecode found at address")
	ErrNoContracts  = errors.New("no contracts match the filter")
	ErrInvalidSuite = errors.New("invalid verification suite")
)

// ArtifactSource supplies the parsed build outputs of a contract. The
// service never touches the filesystem itself.
type ArtifactSource interface {
	Artifact(c Contract) (*evm.Artifact, error)
	// Schema returns nil, nil when the contract declares no schema file
	Schema(c Contract) (*state.Schema, error)
}

// Dialer connects to a chain.
type Dialer func(ctx context.Context, cfg chains.Config) (chains.Adapter, error)

type service struct {
	dial   Dialer
	source ArtifactSource
	hasher evm.Hasher
	logger *slog.Logger
}

// NewService creates a new verification service.
func NewService(dial Dialer, source ArtifactSource, hasher evm.Hasher, logger *slog.Logger) *service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		dial:   dial,
		source: source,
		hasher: hasher,
		logger: logger,
	}
}

// NamespaceSlot returns the ERC-7201 base slot of a namespace id.
func (s *service) NamespaceSlot(namespaceID string) common.Hash {
	return state.Erc7201BaseSlot(s.hasher, namespaceID)
}

// Verify runs every contract of the suite that passes the filters.
func (s *service) Verify(ctx context.Context, suite *Suite, opts VerifyOptions) (*Summary, error) {
	if err := ValidateSuite(suite); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSuite, err)
	}

	registry := chains.NewRegistry()
	for name, cfg := range suite.Chains {
		if cfg.Name == "" {
			cfg.Name = name
		}
		registry.Register(cfg)
	}

	var selected []Contract
	for _, c := range suite.Contracts {
		if opts.Contract != "" && !strings.EqualFold(c.Name, opts.Contract) {
			continue
		}
		if opts.Chain != "" && !strings.EqualFold(c.Chain, opts.Chain) {
			continue
		}
		selected = append(selected, c)
	}
	if len(selected) == 0 {
		return nil, ErrNoContracts
	}

	adapters, dialErrs := s.connect(ctx, registry, selected)
	defer closeAdapters(adapters)

	results := make([]ContractResult, len(selected))
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, c := range selected {
		i, c := i, c
		g.Go(func() error {
			key := strings.ToLower(c.Chain)
			cfg, ok := registry.Get(c.Chain)
			switch {
			case !ok:
				results[i] = ContractResult{Contract: c, SkipReason: fmt.Sprintf("chain %q is not configured", c.Chain)}
				s.logger.Warn("skipping contract on unknown chain", "contract", c.Name, "chain", c.Chain)
			case dialErrs[key] != nil:
				results[i] = ContractResult{Contract: c, Chain: cfg, Error: fmt.Sprintf("connecting to %s: %v", cfg.Name, dialErrs[key])}
			default:
				results[i] = s.VerifyContract(ctx, adapters[key], cfg, c, opts)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &Summary{Total: len(results)}
	for _, r := range results {
		summary.Add(r)
		metrics.ContractVerified(r.Chain.Name, r.Outcome())
	}
	result := OutcomePassed
	switch {
	case summary.Failed > 0:
		result = OutcomeFailed
	case summary.Warnings > 0:
		result = OutcomeWarnings
	}
	metrics.RunCompleted(result)
	return summary, nil
}

// connect dials every distinct chain used by contracts exactly once.
func (s *service) connect(ctx context.Context, registry *chains.Registry, contracts []Contract) (map[string]chains.Adapter, map[string]error) {
	adapters := make(map[string]chains.Adapter)
	errs := make(map[string]error)
	for _, c := range contracts {
		key := strings.ToLower(c.Chain)
		if _, done := adapters[key]; done {
			continue
		}
		if _, done := errs[key]; done {
			continue
		}
		cfg, ok := registry.Get(c.Chain)
		if !ok {
			continue
		}
		a, err := s.dial(ctx, cfg)
		if err != nil {
			s.logger.Error("dialing chain", "chain", cfg.Name, "error", err)
			errs[key] = err
			continue
		}
		adapters[key] = a
	}
	return adapters, errs
}

func closeAdapters(adapters map[string]chains.Adapter) {
	for _, a := range adapters {
		switch c := a.(type) {
		case io.Closer:
			_ = c.Close()
		case interface{ Close() }:
			c.Close()
		}
	}
}

// VerifyContract checks one deployment: bytecode, ABI selectors and declared
// state. Failures that prevent any check land on the result's Error.
func (s *service) VerifyContract(ctx context.Context, a chains.Adapter, chain chains.Config, c Contract, opts VerifyOptions) ContractResult {
	start := time.Now()
	result := ContractResult{Contract: c, Chain: chain}
	fail := func(err error) ContractResult {
		result.Error = err.Error()
		return result
	}

	if !common.IsHexAddress(c.Address) {
		return fail(fmt.Errorf("invalid address %q", c.Address))
	}
	addr := common.HexToAddress(c.Address)

	artifact, err := s.source.Artifact(c)
	if err != nil {
		return fail(fmt.Errorf("loading artifact: %w", err))
	}
	if opts.Verbose {
		s.logger.Info("artifact loaded", "contract", c.Name, "format", artifact.Format,
			"immutables", len(artifact.ImmutableReferences))
	}

	remote, err := fetchCode(ctx, a, addr)
	if err != nil {
		return fail(err)
	}
	codeAddr := addr

	if c.IsProxy {
		if impl, ok := ImplementationAddress(ctx, a, addr); ok {
			s.logger.Debug("proxy detected", "contract", c.Name, "implementation", impl.Hex())
			remote, err = fetchCode(ctx, a, impl)
			if err != nil {
				return fail(err)
			}
			codeAddr = impl
		} else {
			msg := fmt.Sprintf("Contract marked as proxy but no EIP-1967 implementation found at %s", addr.Hex())
			s.logger.Warn(msg, "contract", c.Name)
			result.Warnings = append(result.Warnings, msg)
		}
	}
	result.AddressUsed, _ = a.ChecksumAddress(codeAddr.Hex())

	if !opts.SkipBytecode {
		result.Bytecode, err = s.verifyBytecode(a, artifact, remote, c)
		if err != nil {
			return fail(err)
		}
		metrics.CheckCompleted("bytecode", string(result.Bytecode.Status))
	}

	if !opts.SkipABI {
		result.ABI = evm.CompareSelectors(evm.SelectorsFromArtifact(a, artifact), evm.SelectorsFromBytecode(remote))
		metrics.CheckCompleted("abi", string(result.ABI.Status))
	}

	if !opts.SkipState && c.State != nil {
		schema, err := s.source.Schema(c)
		if err != nil {
			return fail(fmt.Errorf("loading schema: %w", err))
		}
		// state lives at the proxy, not the implementation
		result.State = s.VerifyState(ctx, a, addr, artifact, c.State, schema)
		metrics.CheckCompleted("state", string(result.State.Status))
	}

	s.logger.Debug("contract verified",
		"contract", c.Name,
		"chain", chain.Name,
		"address", result.AddressUsed,
		"code_bytes", len(remote),
		"outcome", result.Outcome(),
		"duration", time.Since(start),
	)
	return result
}

func fetchCode(ctx context.Context, r chains.Reader, addr common.Address) ([]byte, error) {
	code, err := r.Code(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetching code at %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoBytecode, addr.Hex())
	}
	return code, nil
}

// ImplementationAddress reads the EIP-1967 implementation slot of a proxy.
// It reports false when the slot is empty or cannot be read.
func ImplementationAddress(ctx context.Context, r chains.Reader, proxy common.Address) (common.Address, bool) {
	word, err := r.StorageAt(ctx, proxy, evm.EIP1967ImplementationSlot)
	if err != nil {
		return common.Address{}, false
	}
	impl := common.BytesToAddress(word[common.HashLength-common.AddressLength:])
	if impl == (common.Address{}) {
		return common.Address{}, false
	}
	return impl, true
}

// verifyBytecode layers the precise checks on the advisory comparison:
// library linking, masked comparison, named immutables and constructor args.
func (s *service) verifyBytecode(a chains.Adapter, artifact *evm.Artifact, remote []byte, c Contract) (*BytecodeResult, error) {
	local := *artifact
	var libs *evm.LibrariesResult
	if len(artifact.DeployedLinkReferences) > 0 {
		var err error
		libs, err = evm.VerifyLinkedLibraries(remote, artifact.DeployedLinkReferences, c.Libraries)
		if err != nil {
			return nil, err
		}
		if len(c.Libraries) == 0 {
			libs.Message = fmt.Sprintf("%d library reference(s) require an address but none provided in libraries config", len(libs.Results))
		} else {
			linked, err := evm.LinkLibraries(a, artifact.DeployedBytecode, c.Libraries)
			if err != nil {
				return nil, err
			}
			local.DeployedBytecode = linked
		}
	}

	code, err := local.DeployedCode()
	if err != nil {
		return nil, fmt.Errorf("decoding artifact bytecode: %w", err)
	}

	res := &BytecodeResult{BytecodeResult: *evm.CompareBytecode(code, remote), Libraries: libs}

	if res.Status != evm.StatusPass && (len(artifact.ImmutableReferences) > 0 || len(artifact.DeployedLinkReferences) > 0) {
		def, err := evm.DefinitiveCompareBytecode(code, remote, artifact.ImmutableReferences, artifact.DeployedLinkReferences)
		if err != nil {
			return nil, err
		}
		res.Definitive = def
		res.GroupedImmutables = evm.GroupImmutableDifferences(res.ImmutableDifferences, artifact.ImmutableReferences, remote)
		for _, line := range evm.FormatGroupedImmutables(res.GroupedImmutables) {
			s.logger.Debug("immutable difference", "contract", c.Name, "detail", line)
		}
		if def.ExactMatch {
			full := 100
			res.Status = evm.StatusPass
			res.MatchPercent = &full
			res.OnlyImmutablesDiffer = true
			res.Message = fmt.Sprintf("Bytecode matches (%d immutable value(s) differ at known positions)", len(res.GroupedImmutables))
		} else {
			res.Status = evm.StatusFail
			res.Message = def.Message
		}
	}

	if len(c.Immutables) > 0 {
		iv, err := evm.VerifyImmutableValues(remote, artifact.ImmutableReferences, c.Immutables)
		if err != nil {
			return nil, err
		}
		res.ImmutableValues = iv
		if iv.Status == evm.StatusPass {
			res.Message += " - immutable values verified"
		} else {
			res.Status = evm.StatusFail
			res.Message += " - " + iv.Message
		}
	}

	if res.OnlyImmutablesDiffer && len(c.ConstructorArgs) > 0 {
		ctor, _ := artifact.Constructor()
		v := evm.ValidateImmutablesAgainstArgs(a, remote, artifact.ImmutableReferences, ctor, c.ConstructorArgs)
		res.ArgsValidation = v
		if v.Status == evm.StatusPass {
			res.Message += " - constructor args validated"
		} else if res.Status == evm.StatusPass {
			res.Status = evm.StatusWarn
			res.Message += " - " + v.Message
		}
	}

	meta, mismatch := evm.CheckCompiler(artifact.CompilerVersion, remote)
	res.Metadata = meta
	if mismatch != "" {
		if res.Status == evm.StatusPass {
			res.Status = evm.StatusWarn
		}
		res.Message += " - " + mismatch
	}

	if libs != nil && libs.Status == evm.StatusFail {
		res.Status = evm.StatusFail
		res.Message = "Linked library address mismatch: " + libs.Message + " - " + res.Message
	}
	return res, nil
}

// ExecuteViewCall calls a view function and compares the decoded result.
// A single return value is compared as is; several compare as a list.
func (s *service) ExecuteViewCall(ctx context.Context, a chains.Adapter, addr common.Address, artifact *evm.Artifact, check ViewCallCheck) ViewCallResult {
	res := ViewCallResult{Function: check.Function, Params: check.Params, Expected: check.Expected, Status: evm.StatusFail}

	if _, ok := artifact.Function(check.Function); !ok {
		res.Message = fmt.Sprintf("Function '%s' not found in ABI", check.Function)
		return res
	}

	abiJSON, err := artifactABIJSON(artifact)
	if err != nil {
		res.Message = fmt.Sprintf("Call failed: %v", err)
		return res
	}
	data, err := a.EncodeCall(abiJSON, check.Function, check.Params)
	if err != nil {
		res.Message = fmt.Sprintf("Call failed: %v", err)
		return res
	}
	out, err := a.Call(ctx, addr, data)
	if err != nil {
		res.Message = fmt.Sprintf("Call failed: %v", err)
		return res
	}
	decoded, err := a.DecodeCall(abiJSON, check.Function, out)
	if err != nil {
		res.Message = fmt.Sprintf("Call failed: %v", err)
		return res
	}

	if len(decoded) == 1 {
		res.Actual = decoded[0]
	} else {
		res.Actual = decoded
	}

	op := check.Comparison
	if op == "" {
		op = evm.OpEq
	}
	if evm.CompareValues(check.Expected, res.Actual, op) {
		res.Status = evm.StatusPass
		res.Message = fmt.Sprintf("%s() = %s", check.Function, evm.FormatForDisplay(res.Actual))
	} else {
		res.Message = fmt.Sprintf("Expected %s, got %s", evm.FormatForDisplay(check.Expected), evm.FormatForDisplay(res.Actual))
	}
	return res
}

// artifactABIJSON returns the raw ABI, re-encoding it for artifacts built in memory
func artifactABIJSON(a *evm.Artifact) ([]byte, error) {
	if len(a.ABIJSON) > 0 {
		return a.ABIJSON, nil
	}
	b, err := json.Marshal(a.ABI)
	if err != nil {
		return nil, fmt.Errorf("encoding ABI: %w", err)
	}
	return b, nil
}
