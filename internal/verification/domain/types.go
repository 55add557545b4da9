// Package domain contains the business logic for contract verification.
package domain

import (
	"strings"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/state"
)

// Suite is a set of deployed contracts and the chains they live on.
type Suite struct {
	Name      string                   `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Chains    map[string]chains.Config `json:"chains" yaml:"chains" toml:"chains"`
	Contracts []Contract               `json:"contracts" yaml:"contracts" toml:"contracts"`
}

// ApplyDefaultChains adds registry entries for chains that contracts use but
// the suite does not declare, and names declared chains after their key
func ApplyDefaultChains(suite *Suite, registry *chains.Registry) {
	if suite.Chains == nil {
		suite.Chains = make(map[string]chains.Config)
	}
	for key, cfg := range suite.Chains {
		if cfg.Name == "" {
			cfg.Name = key
			suite.Chains[key] = cfg
		}
	}
	for _, c := range suite.Contracts {
		if c.Chain == "" || declared(suite.Chains, c.Chain) {
			continue
		}
		if cfg, ok := registry.Get(c.Chain); ok {
			suite.Chains[cfg.Name] = cfg
		}
	}
}

func declared(m map[string]chains.Config, name string) bool {
	for key := range m {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}

// Contract is one deployment to verify against its build artifact.
type Contract struct {
	Name            string            `json:"name" yaml:"name" toml:"name"`
	Chain           string            `json:"chain" yaml:"chain" toml:"chain"`
	Address         string            `json:"address" yaml:"address" toml:"address"`
	ArtifactFile    string            `json:"artifactFile" yaml:"artifactFile" toml:"artifactFile"`
	IsProxy         bool              `json:"isProxy,omitempty" yaml:"isProxy,omitempty" toml:"isProxy,omitempty"`
	ConstructorArgs []any             `json:"constructorArgs,omitempty" yaml:"constructorArgs,omitempty" toml:"constructorArgs,omitempty"`
	Immutables      map[string]any    `json:"immutableValues,omitempty" yaml:"immutableValues,omitempty" toml:"immutableValues,omitempty"`
	Libraries       map[string]string `json:"libraries,omitempty" yaml:"libraries,omitempty" toml:"libraries,omitempty"`
	State           *StateConfig      `json:"stateVerification,omitempty" yaml:"stateVerification,omitempty" toml:"stateVerification,omitempty"`
}

// StateConfig declares the state checks for a contract.
type StateConfig struct {
	// OZVersion selects the OpenZeppelin Initializable layout ("4.9.3", "5")
	OZVersion string `json:"ozVersion,omitempty" yaml:"ozVersion,omitempty" toml:"ozVersion,omitempty"`
	// InitializedVersion is the expected _initialized counter
	InitializedVersion *uint64 `json:"initializedVersion,omitempty" yaml:"initializedVersion,omitempty" toml:"initializedVersion,omitempty"`

	ViewCalls    []ViewCallCheck          `json:"viewCalls,omitempty" yaml:"viewCalls,omitempty" toml:"viewCalls,omitempty"`
	Namespaces   []state.NamespaceCheck   `json:"namespaces,omitempty" yaml:"namespaces,omitempty" toml:"namespaces,omitempty"`
	Slots        []state.SlotCheck        `json:"slots,omitempty" yaml:"slots,omitempty" toml:"slots,omitempty"`
	StoragePaths []state.StoragePathCheck `json:"storagePaths,omitempty" yaml:"storagePaths,omitempty" toml:"storagePaths,omitempty"`
	SchemaFile   string                   `json:"schemaFile,omitempty" yaml:"schemaFile,omitempty" toml:"schemaFile,omitempty"`
}

// Empty reports whether no check is declared
func (c *StateConfig) Empty() bool {
	return c == nil || (len(c.ViewCalls) == 0 && len(c.Namespaces) == 0 && len(c.Slots) == 0 &&
		len(c.StoragePaths) == 0 && c.InitializedVersion == nil)
}

// ViewCallCheck calls a view function and compares its result.
type ViewCallCheck struct {
	Function   string       `json:"function" yaml:"function" toml:"function"`
	Params     []any        `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	Expected   any          `json:"expected" yaml:"expected" toml:"expected"`
	Comparison evm.Operator `json:"comparison,omitempty" yaml:"comparison,omitempty" toml:"comparison,omitempty"`
}

// ViewCallResult is the outcome of a ViewCallCheck.
type ViewCallResult struct {
	Function string     `json:"function"`
	Params   []any      `json:"params,omitempty"`
	Expected any        `json:"expected"`
	Actual   any        `json:"actual,omitempty"`
	Status   evm.Status `json:"status"`
	Message  string     `json:"message"`
}

// StateResult aggregates every state check of a contract.
type StateResult struct {
	Status             evm.Status                `json:"status"`
	Message            string                    `json:"message"`
	ViewCallResults    []ViewCallResult          `json:"viewCallResults,omitempty"`
	NamespaceResults   []state.NamespaceResult   `json:"namespaceResults,omitempty"`
	SlotResults        []state.SlotResult        `json:"slotResults,omitempty"`
	StoragePathResults []state.StoragePathResult `json:"storagePathResults,omitempty"`
	SkippedCount       int                       `json:"skippedCount,omitempty"`
}

// BytecodeResult is the advisory comparison plus the precise checks layered on it.
type BytecodeResult struct {
	evm.BytecodeResult
	Definitive      *evm.DefinitiveResult      `json:"definitive,omitempty"`
	ImmutableValues *evm.ImmutableValuesResult `json:"immutableValues,omitempty"`
	ArgsValidation  *evm.ArgsValidation        `json:"argsValidation,omitempty"`
	Libraries       *evm.LibrariesResult       `json:"libraries,omitempty"`
	// Metadata is the solc trailer of the deployed code
	Metadata *evm.Metadata `json:"metadata,omitempty"`

	GroupedImmutables []evm.GroupedImmutableDifference `json:"groupedImmutables,omitempty"`
}

// ContractResult is the verdict for one contract.
type ContractResult struct {
	Contract    Contract        `json:"contract"`
	Chain       chains.Config   `json:"chain"`
	AddressUsed string          `json:"addressUsed,omitempty"`
	Bytecode    *BytecodeResult `json:"bytecodeResult,omitempty"`
	ABI         *evm.AbiResult  `json:"abiResult,omitempty"`
	State       *StateResult    `json:"stateResult,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
	SkipReason  string          `json:"skipReason,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Outcome classes a contract result is counted under
const (
	OutcomePassed   = "passed"
	OutcomeFailed   = "failed"
	OutcomeWarnings = "warnings"
	OutcomeSkipped  = "skipped"
)

// Outcome classifies the result: an error or any fail is failed, then any
// warn is warnings; no check, or only skipped checks, is skipped even when
// the contract carries warnings.
func (r *ContractResult) Outcome() string {
	if r.Error != "" {
		return OutcomeFailed
	}
	if r.SkipReason != "" {
		return OutcomeSkipped
	}
	var statuses []evm.Status
	if r.Bytecode != nil {
		statuses = append(statuses, r.Bytecode.Status)
	}
	if r.ABI != nil {
		statuses = append(statuses, r.ABI.Status)
	}
	if r.State != nil {
		statuses = append(statuses, r.State.Status)
	}
	// Warnings only count once a check ran
	if len(r.Warnings) > 0 && evm.Worst(statuses...) != evm.StatusSkip {
		statuses = append(statuses, evm.StatusWarn)
	}
	switch evm.Worst(statuses...) {
	case evm.StatusFail:
		return OutcomeFailed
	case evm.StatusWarn:
		return OutcomeWarnings
	case evm.StatusPass:
		return OutcomePassed
	}
	return OutcomeSkipped
}

// Summary folds the results of a verification run.
type Summary struct {
	Total    int              `json:"total"`
	Passed   int              `json:"passed"`
	Failed   int              `json:"failed"`
	Warnings int              `json:"warnings"`
	Skipped  int              `json:"skipped"`
	Results  []ContractResult `json:"results"`
}

// Add counts a result and keeps it
func (s *Summary) Add(r ContractResult) {
	switch r.Outcome() {
	case OutcomeFailed:
		s.Failed++
	case OutcomeWarnings:
		s.Warnings++
	case OutcomePassed:
		s.Passed++
	default:
		s.Skipped++
	}
	s.Results = append(s.Results, r)
}

// VerifyOptions controls a verification run.
type VerifyOptions struct {
	Verbose      bool
	SkipBytecode bool
	SkipABI      bool
	SkipState    bool
	// Contract and Chain filter by name, case-insensitive
	Contract string
	Chain    string
	// Concurrency > 1 verifies contracts in parallel
	Concurrency int
}
