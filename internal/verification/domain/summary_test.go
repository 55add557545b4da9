package domain

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

func TestContractResult_Outcome(t *testing.T) {
	pass := &BytecodeResult{BytecodeResult: evm.BytecodeResult{Status: evm.StatusPass}}
	warnABI := &evm.AbiResult{Status: evm.StatusWarn}
	failState := &StateResult{Status: evm.StatusFail}
	skipState := &StateResult{Status: evm.StatusSkip}

	tests := []struct {
		name string
		res  ContractResult
		want string
	}{
		{name: "error", res: ContractResult{Error: "boom", Bytecode: pass}, want: OutcomeFailed},
		{name: "any fail", res: ContractResult{Bytecode: pass, ABI: warnABI, State: failState}, want: OutcomeFailed},
		{name: "warn", res: ContractResult{Bytecode: pass, ABI: warnABI}, want: OutcomeWarnings},
		{name: "proxy warning", res: ContractResult{Bytecode: pass, Warnings: []string{"no implementation"}}, want: OutcomeWarnings},
		{name: "proxy warning with every check skipped", res: ContractResult{State: skipState, Warnings: []string{"no implementation"}}, want: OutcomeSkipped},
		{name: "pass with skipped state", res: ContractResult{Bytecode: pass, State: skipState}, want: OutcomePassed},
		{name: "only skipped", res: ContractResult{State: skipState}, want: OutcomeSkipped},
		{name: "nothing ran", res: ContractResult{}, want: OutcomeSkipped},
		{name: "unknown chain", res: ContractResult{SkipReason: "chain not configured"}, want: OutcomeSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.Outcome())
		})
	}
}

func TestPrintSummary(t *testing.T) {
	s := &Summary{Total: 3}
	s.Add(ContractResult{
		Contract: Contract{Name: "Token", Chain: "mainnet"},
		Bytecode: &BytecodeResult{BytecodeResult: evm.BytecodeResult{Status: evm.StatusPass, Message: "Bytecode matches exactly"}},
	})
	s.Add(ContractResult{
		Contract: Contract{Name: "Vault", Chain: "mainnet"},
		Bytecode: &BytecodeResult{BytecodeResult: evm.BytecodeResult{Status: evm.StatusFail, Message: "Bytecode mismatch: 42% match"}},
		State:    &StateResult{Status: evm.StatusFail, Message: "1/2 state checks passed"},
	})
	s.Add(ContractResult{Contract: Contract{Name: "Bridge", Chain: "sepolia"}, Error: "no bytecode found at address 0xdead"})

	var buf bytes.Buffer
	PrintSummary(&buf, s)
	out := buf.String()

	assert.Contains(t, out, "VERIFICATION SUMMARY")
	assert.Contains(t, out, "Total contracts: 3")
	assert.Contains(t, out, "  Passed:   1")
	assert.Contains(t, out, "  Failed:   2")
	assert.Contains(t, out, "Failed contracts:")
	assert.Contains(t, out, "  - Vault (mainnet)\n    Bytecode: Bytecode mismatch: 42% match\n    State: 1/2 state checks passed")
	assert.Contains(t, out, "  - Bridge (sepolia)\n    Error: no bytecode found at address 0xdead")
	assert.NotContains(t, out, "- Token")
}

func TestPrintSummary_NoFailures(t *testing.T) {
	s := &Summary{Total: 1}
	s.Add(ContractResult{ABI: &evm.AbiResult{Status: evm.StatusWarn}})

	var buf bytes.Buffer
	PrintSummary(&buf, s)
	assert.Contains(t, buf.String(), "  Warnings: 1")
	assert.NotContains(t, buf.String(), "Failed contracts:")
}

func TestPrintResult(t *testing.T) {
	r := ContractResult{
		Contract:    Contract{Name: "Token", Address: "0x00000000000000000000000000000000000000aa"},
		Chain:       chains.Config{Name: "mainnet"},
		AddressUsed: "0x00000000000000000000000000000000000000Bb",
		Warnings:    []string{"no implementation"},
		Bytecode:    &BytecodeResult{BytecodeResult: evm.BytecodeResult{Status: evm.StatusPass, Message: "Bytecode matches exactly"}},
		ABI:         &evm.AbiResult{Status: evm.StatusWarn, Message: "All 2 ABI selectors found"},
		State: &StateResult{
			Status:          evm.StatusFail,
			Message:         "0/1 state checks passed",
			ViewCallResults: []ViewCallResult{{Status: evm.StatusFail, Message: "Expected 1, got 2"}},
		},
	}

	var buf bytes.Buffer
	PrintResult(&buf, r, false)
	out := buf.String()

	assert.Contains(t, out, "Token (mainnet) 0x00000000000000000000000000000000000000aa")
	assert.Contains(t, out, "  Implementation: 0x00000000000000000000000000000000000000Bb")
	assert.Contains(t, out, "  ! Warning: no implementation")
	assert.Contains(t, out, "  ✓ Bytecode: Bytecode matches exactly")
	assert.Contains(t, out, "  ! ABI: All 2 ABI selectors found")
	assert.Contains(t, out, "  ✗ State: 0/1 state checks passed")
	assert.Contains(t, out, "    ✗ Expected 1, got 2")
}
