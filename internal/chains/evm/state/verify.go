package state

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

// SlotCheck asserts the value stored in an explicit slot
type SlotCheck struct {
	Slot     string `json:"slot" yaml:"slot" toml:"slot"`
	Type     string `json:"type" yaml:"type" toml:"type"`
	Name     string `json:"name" yaml:"name" toml:"name"`
	Offset   int    `json:"offset,omitempty" yaml:"offset,omitempty" toml:"offset,omitempty"`
	Expected any    `json:"expected" yaml:"expected" toml:"expected"`
}

// SlotResult is the outcome of a SlotCheck
type SlotResult struct {
	Slot     string     `json:"slot"`
	Name     string     `json:"name"`
	Expected any        `json:"expected"`
	Actual   any        `json:"actual,omitempty"`
	Status   evm.Status `json:"status"`
	Message  string     `json:"message"`
}

// NamespaceVariable is a variable at a slot offset from a namespace's base slot
type NamespaceVariable struct {
	Name       string `json:"name" yaml:"name" toml:"name"`
	Type       string `json:"type" yaml:"type" toml:"type"`
	Offset     uint64 `json:"offset" yaml:"offset" toml:"offset"`
	ByteOffset int    `json:"byteOffset,omitempty" yaml:"byteOffset,omitempty" toml:"byteOffset,omitempty"`
	Expected   any    `json:"expected" yaml:"expected" toml:"expected"`
}

// NamespaceCheck asserts variables inside an ERC-7201 namespace
type NamespaceCheck struct {
	ID        string              `json:"id" yaml:"id" toml:"id"`
	Variables []NamespaceVariable `json:"variables" yaml:"variables" toml:"variables"`
}

// NamespaceResult is the outcome of a NamespaceCheck
type NamespaceResult struct {
	NamespaceID string       `json:"namespaceId"`
	BaseSlot    string       `json:"baseSlot"`
	Variables   []SlotResult `json:"variables"`
	Status      evm.Status   `json:"status"`
	Message     string       `json:"message"`
}

// StoragePathCheck asserts the value at a schema path
type StoragePathCheck struct {
	Path       string       `json:"path" yaml:"path" toml:"path"`
	Expected   any          `json:"expected" yaml:"expected" toml:"expected"`
	Comparison evm.Operator `json:"comparison,omitempty" yaml:"comparison,omitempty" toml:"comparison,omitempty"`
}

// StoragePathResult is the outcome of a StoragePathCheck
type StoragePathResult struct {
	Path         string     `json:"path"`
	ComputedSlot string     `json:"computedSlot"`
	Type         string     `json:"type"`
	Expected     any        `json:"expected"`
	Actual       any        `json:"actual,omitempty"`
	Status       evm.Status `json:"status"`
	Message      string     `json:"message"`
}

// ParseSlot accepts a slot as 0x hex or decimal
func ParseSlot(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	n, ok := parseBig(strings.ToLower(s))
	if !ok || n.Sign() < 0 || n.BitLen() > 256 {
		return common.Hash{}, fmt.Errorf("invalid slot %q", s)
	}
	return common.BigToHash(n), nil
}

// ReadStorageSlot reads one slot and decodes the value at offset
func ReadStorageSlot(ctx context.Context, r chains.Reader, addr common.Address, slot common.Hash, typ string, offset int) (any, error) {
	word, err := r.StorageAt(ctx, addr, slot)
	if err != nil {
		return nil, err
	}
	return DecodeSlotValue(r, word, typ, offset)
}

// VerifySlot reads an explicit slot and compares it with the expected value.
// Read errors fail this check only.
func VerifySlot(ctx context.Context, r chains.Reader, addr common.Address, check SlotCheck) SlotResult {
	res := SlotResult{Slot: check.Slot, Name: check.Name, Expected: check.Expected}

	slot, err := ParseSlot(check.Slot)
	if err == nil {
		res.Actual, err = ReadStorageSlot(ctx, r, addr, slot, check.Type, check.Offset)
	}
	if err != nil {
		res.Status = evm.StatusFail
		res.Message = fmt.Sprintf("Failed to read slot: %v", err)
		return res
	}

	if evm.CompareValues(check.Expected, res.Actual, evm.OpEq) {
		res.Status = evm.StatusPass
		res.Message = fmt.Sprintf("%s = %s", check.Name, evm.FormatForDisplay(res.Actual))
	} else {
		res.Status = evm.StatusFail
		res.Message = fmt.Sprintf("%s: expected %s, got %s", check.Name, evm.FormatForDisplay(check.Expected), evm.FormatForDisplay(res.Actual))
	}
	return res
}

// VerifyNamespace checks each variable at baseSlot + offset. The namespace
// passes only when every variable passes.
func VerifyNamespace(ctx context.Context, r chains.Reader, h evm.Hasher, addr common.Address, check NamespaceCheck) NamespaceResult {
	base := Erc7201BaseSlot(h, check.ID)
	res := NamespaceResult{NamespaceID: check.ID, BaseSlot: base.Hex()}

	var failures []string
	for _, v := range check.Variables {
		slot := addSlot(base, new(big.Int).SetUint64(v.Offset))
		vr := VerifySlot(ctx, r, addr, SlotCheck{
			Slot:     slot.Hex(),
			Type:     v.Type,
			Name:     v.Name,
			Offset:   v.ByteOffset,
			Expected: v.Expected,
		})
		if vr.Status != evm.StatusPass {
			failures = append(failures, vr.Message)
		}
		res.Variables = append(res.Variables, vr)
	}

	if len(failures) == 0 {
		res.Status = evm.StatusPass
		res.Message = fmt.Sprintf("%s: all %d variable(s) verified", check.ID, len(check.Variables))
	} else {
		res.Status = evm.StatusFail
		res.Message = fmt.Sprintf("%s: %d/%d variable(s) failed: %s", check.ID, len(failures), len(check.Variables), strings.Join(failures, "; "))
	}
	return res
}

// VerifyStoragePath resolves a schema path to a slot, reads it and compares
// with the configured operator
func VerifyStoragePath(ctx context.Context, r chains.Reader, c Crypto, addr common.Address, check StoragePathCheck, schema *Schema) StoragePathResult {
	res := StoragePathResult{Path: check.Path, Expected: check.Expected, ComputedSlot: "error", Type: "unknown"}

	fail := func(err error) StoragePathResult {
		res.Status = evm.StatusFail
		res.Message = fmt.Sprintf("Error: %v", err)
		return res
	}

	p, err := ParsePath(check.Path)
	if err != nil {
		return fail(err)
	}
	computed, err := ComputeSlot(c, schema, p)
	if err != nil {
		return fail(err)
	}
	res.ComputedSlot = computed.Slot.Hex()
	res.Type = computed.Type

	res.Actual, err = ReadStorageSlot(ctx, r, addr, computed.Slot, computed.Type, computed.ByteOffset)
	if err != nil {
		return fail(err)
	}

	op := check.Comparison
	if op == "" {
		op = evm.OpEq
	}
	if evm.CompareValues(check.Expected, res.Actual, op) {
		res.Status = evm.StatusPass
		res.Message = fmt.Sprintf("%s = %s", check.Path, evm.FormatForDisplay(res.Actual))
	} else {
		res.Status = evm.StatusFail
		res.Message = fmt.Sprintf("%s: expected %s%s, got %s", check.Path, opPrefix(op), evm.FormatForDisplay(check.Expected), evm.FormatForDisplay(res.Actual))
	}
	return res
}

func opPrefix(op evm.Operator) string {
	if op == evm.OpEq {
		return ""
	}
	return string(op) + " "
}
