package domain

import (
	"errors"
	"fmt"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/validation"
)

// ValidateSuite checks a suite before any chain is contacted. Contracts on a
// chain the suite does not declare are not an error; they are skipped.
func ValidateSuite(s *Suite) error {
	if s == nil {
		return errors.New("suite is empty")
	}
	if len(s.Contracts) == 0 {
		return errors.New("no contracts declared")
	}
	for name, c := range s.Chains {
		if err := validation.ValidateChainName(name); err != nil {
			return fmt.Errorf("chain %q: %w", name, err)
		}
		if err := validation.ValidateChainID(c.ChainID); err != nil {
			return fmt.Errorf("chain %q: %w", name, err)
		}
		if err := validation.ValidateRPCURL(c.RPCURL); err != nil {
			return fmt.Errorf("chain %q: %w", name, err)
		}
	}
	for i, c := range s.Contracts {
		if err := validateContract(c); err != nil {
			return fmt.Errorf("contract %d (%s): %w", i, c.Name, err)
		}
	}
	return nil
}

func validateContract(c Contract) error {
	if err := validation.ValidateContractName(c.Name); err != nil {
		return err
	}
	if c.Chain == "" {
		return errors.New("chain is required")
	}
	if err := validation.ValidateAddress(c.Address); err != nil {
		return err
	}
	if c.ArtifactFile == "" {
		return errors.New("artifactFile is required")
	}
	for name, addr := range c.Libraries {
		if err := validation.ValidateAddress(addr); err != nil {
			return fmt.Errorf("library %s: %w", name, err)
		}
	}
	if c.State == nil {
		return nil
	}
	if c.State.OZVersion != "" {
		if err := validation.ValidateVersion(c.State.OZVersion); err != nil {
			return fmt.Errorf("ozVersion: %w", err)
		}
	}
	for _, v := range c.State.ViewCalls {
		if v.Function == "" {
			return errors.New("view call without function")
		}
		if !evm.ValidOperator(v.Comparison) {
			return fmt.Errorf("view call %s: unknown comparison %q", v.Function, v.Comparison)
		}
	}
	for _, p := range c.State.StoragePaths {
		if !evm.ValidOperator(p.Comparison) {
			return fmt.Errorf("storage path %s: unknown comparison %q", p.Path, p.Comparison)
		}
	}
	for _, n := range c.State.Namespaces {
		if n.ID == "" {
			return errors.New("namespace without id")
		}
	}
	return nil
}
