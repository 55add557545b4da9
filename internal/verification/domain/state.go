package domain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/state"
)

// defaultOZVersion is assumed when initializedVersion is set without ozVersion
const defaultOZVersion = "5"

// VerifyState runs the four check groups concurrently, and every check of a
// group concurrently with its siblings. A failing check never cancels the
// others. Storage paths are skipped when schema is nil.
func (s *service) VerifyState(ctx context.Context, a chains.Adapter, addr common.Address, artifact *evm.Artifact, cfg *StateConfig, schema *state.Schema) *StateResult {
	slots := cfg.Slots
	var initErr error
	if cfg.InitializedVersion != nil {
		version := cfg.OZVersion
		if version == "" {
			version = defaultOZVersion
		}
		extra, err := state.InitializableSlots(state.InitializableCheck{Version: version, Initialized: *cfg.InitializedVersion})
		if err != nil {
			initErr = err
		} else {
			slots = append(append([]state.SlotCheck(nil), slots...), extra...)
		}
	}

	res := &StateResult{
		ViewCallResults:  make([]ViewCallResult, len(cfg.ViewCalls)),
		NamespaceResults: make([]state.NamespaceResult, len(cfg.Namespaces)),
		SlotResults:      make([]state.SlotResult, len(slots)),
	}
	if schema != nil {
		res.StoragePathResults = make([]state.StoragePathResult, len(cfg.StoragePaths))
	} else {
		res.SkippedCount = len(cfg.StoragePaths)
	}

	var g errgroup.Group
	for i, check := range cfg.ViewCalls {
		i, check := i, check
		g.Go(func() error {
			res.ViewCallResults[i] = s.ExecuteViewCall(ctx, a, addr, artifact, check)
			return nil
		})
	}
	for i, check := range cfg.Namespaces {
		i, check := i, check
		g.Go(func() error {
			res.NamespaceResults[i] = state.VerifyNamespace(ctx, a, a, addr, check)
			return nil
		})
	}
	for i, check := range slots {
		i, check := i, check
		g.Go(func() error {
			res.SlotResults[i] = state.VerifySlot(ctx, a, addr, check)
			return nil
		})
	}
	if schema != nil {
		for i, check := range cfg.StoragePaths {
			i, check := i, check
			g.Go(func() error {
				res.StoragePathResults[i] = state.VerifyStoragePath(ctx, a, a, addr, check, schema)
				return nil
			})
		}
	}
	_ = g.Wait()

	if initErr != nil {
		res.SlotResults = append(res.SlotResults, state.SlotResult{
			Name:     "_initialized",
			Expected: *cfg.InitializedVersion,
			Status:   evm.StatusFail,
			Message:  fmt.Sprintf("Initializable: %v", initErr),
		})
	}

	res.Status, res.Message = aggregateState(res)
	return res
}

// aggregateState folds every check: any fail fails; paths skipped for lack of
// a schema downgrade a clean run to warn; no check at all is skip.
func aggregateState(r *StateResult) (evm.Status, string) {
	var statuses []evm.Status
	for _, v := range r.ViewCallResults {
		statuses = append(statuses, v.Status)
	}
	for _, v := range r.NamespaceResults {
		statuses = append(statuses, v.Status)
	}
	for _, v := range r.SlotResults {
		statuses = append(statuses, v.Status)
	}
	for _, v := range r.StoragePathResults {
		statuses = append(statuses, v.Status)
	}

	total := len(statuses)
	passed := 0
	for _, st := range statuses {
		if st == evm.StatusPass {
			passed++
		}
	}

	skipped := ""
	if r.SkippedCount > 0 {
		skipped = fmt.Sprintf(", %d storage path(s) SKIPPED (schema missing)", r.SkippedCount)
	}

	switch {
	case total == 0 && r.SkippedCount == 0:
		return evm.StatusSkip, "No state checks configured"
	case total == 0:
		return evm.StatusSkip, fmt.Sprintf("0 state checks run%s", skipped)
	case evm.Worst(statuses...) == evm.StatusFail:
		return evm.StatusFail, fmt.Sprintf("%d/%d state checks passed%s", passed, total, skipped)
	case passed == total && r.SkippedCount == 0:
		return evm.StatusPass, fmt.Sprintf("All %d state checks passed", total)
	}
	// Skipped storage paths do not lower the status of the checks that ran
	return evm.Worst(statuses...), fmt.Sprintf("%d/%d state checks passed%s", passed, total, skipped)
}
