package domain

import (
	"fmt"
	"io"
	"strings"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

const banner = "=================================================="

// PrintResult writes the per-check lines of one contract.
func PrintResult(w io.Writer, r ContractResult, verbose bool) {
	fmt.Fprintf(w, "\n%s (%s) %s\n", r.Contract.Name, r.Chain.Name, r.Contract.Address)
	if r.AddressUsed != "" && !strings.EqualFold(r.AddressUsed, r.Contract.Address) {
		fmt.Fprintf(w, "  Implementation: %s\n", r.AddressUsed)
	}
	for _, msg := range r.Warnings {
		fmt.Fprintf(w, "  %s Warning: %s\n", evm.StatusWarn.Icon(), msg)
	}
	if r.SkipReason != "" {
		fmt.Fprintf(w, "  %s Skipped: %s\n", evm.StatusSkip.Icon(), r.SkipReason)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  %s Error: %s\n", evm.StatusFail.Icon(), r.Error)
		return
	}

	if b := r.Bytecode; b != nil {
		fmt.Fprintf(w, "  %s Bytecode: %s\n", b.Status.Icon(), b.Message)
		if verbose {
			if b.Metadata != nil && b.Metadata.Solc != "" {
				fmt.Fprintf(w, "      Compiler: solc %s\n", b.Metadata.Solc)
			}
			if b.Definitive != nil {
				fmt.Fprintf(w, "      Definitive: %s\n", b.Definitive.Message)
			}
			for _, line := range evm.FormatGroupedImmutables(b.GroupedImmutables) {
				fmt.Fprintf(w, "      %s\n", line)
			}
			if b.ImmutableValues != nil {
				for _, iv := range b.ImmutableValues.Results {
					fmt.Fprintf(w, "    %s %s\n", iv.Status.Icon(), iv.Message)
				}
			}
			if b.ArgsValidation != nil {
				for _, d := range b.ArgsValidation.Details {
					fmt.Fprintf(w, "    %s\n", d)
				}
			}
			if b.Libraries != nil {
				for _, l := range b.Libraries.Results {
					fmt.Fprintf(w, "    %s Library %s at %d: %s\n", l.Status.Icon(), l.Library, l.Offset, l.Actual)
				}
			}
		}
	}

	if a := r.ABI; a != nil {
		fmt.Fprintf(w, "  %s ABI: %s\n", a.Status.Icon(), a.Message)
	}

	if st := r.State; st != nil {
		fmt.Fprintf(w, "  %s State: %s\n", st.Status.Icon(), st.Message)
		if verbose || st.Status != evm.StatusPass {
			for _, v := range st.ViewCallResults {
				fmt.Fprintf(w, "    %s %s\n", v.Status.Icon(), v.Message)
			}
			for _, n := range st.NamespaceResults {
				fmt.Fprintf(w, "    %s %s\n", n.Status.Icon(), n.Message)
			}
			for _, sl := range st.SlotResults {
				fmt.Fprintf(w, "    %s %s\n", sl.Status.Icon(), sl.Message)
			}
			for _, p := range st.StoragePathResults {
				fmt.Fprintf(w, "    %s %s\n", p.Status.Icon(), p.Message)
			}
		}
	}
}

// PrintSummary writes the run totals and, when something failed, which
// contracts failed and why.
func PrintSummary(w io.Writer, s *Summary) {
	fmt.Fprintf(w, "\n%s\nVERIFICATION SUMMARY\n%s\n", banner, banner)
	fmt.Fprintf(w, "Total contracts: %d\n", s.Total)
	fmt.Fprintf(w, "  Passed:   %d\n", s.Passed)
	fmt.Fprintf(w, "  Failed:   %d\n", s.Failed)
	fmt.Fprintf(w, "  Warnings: %d\n", s.Warnings)
	fmt.Fprintf(w, "  Skipped:  %d\n", s.Skipped)

	if s.Failed == 0 {
		return
	}
	fmt.Fprintf(w, "\nFailed contracts:\n")
	for _, r := range s.Results {
		if r.Outcome() != OutcomeFailed {
			continue
		}
		fmt.Fprintf(w, "  - %s (%s)\n", r.Contract.Name, r.Contract.Chain)
		if r.Error != "" {
			fmt.Fprintf(w, "    Error: %s\n", r.Error)
		}
		if r.Bytecode != nil && r.Bytecode.Status == evm.StatusFail {
			fmt.Fprintf(w, "    Bytecode: %s\n", r.Bytecode.Message)
		}
		if r.ABI != nil && r.ABI.Status == evm.StatusFail {
			fmt.Fprintf(w, "    ABI: %s\n", r.ABI.Message)
		}
		if r.State != nil && r.State.Status == evm.StatusFail {
			fmt.Fprintf(w, "    State: %s\n", r.State.Message)
		}
	}
}
