package evm

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// MaxExtraSelectorsToReport bounds how many extra bytecode selectors are listed
const MaxExtraSelectorsToReport = 10

const (
	opLT     = 0x10
	opGT     = 0x11
	opEQ     = 0x14
	opPush1  = 0x60
	opPush4  = 0x63
	opPush32 = 0x7f
)

// Hasher computes keccak256
type Hasher interface {
	Keccak256(data ...[]byte) []byte
}

// AbiResult is the outcome of comparing ABI selectors with the bytecode
type AbiResult struct {
	Status            Status   `json:"status"`
	Message           string   `json:"message"`
	AbiSelectors      int      `json:"abiSelectors"`
	BytecodeSelectors int      `json:"bytecodeSelectors"`
	Missing           []string `json:"missing,omitempty"`
	Extra             []string `json:"extra,omitempty"`
}

// canonicalType expands tuple types into their component list
func canonicalType(p ABIParam) string {
	if !strings.HasPrefix(p.Type, "tuple") {
		return p.Type
	}
	parts := make([]string, len(p.Components))
	for i, c := range p.Components {
		parts[i] = canonicalType(c)
	}
	return "(" + strings.Join(parts, ",") + ")" + strings.TrimPrefix(p.Type, "tuple")
}

// FunctionSignature returns the canonical signature, e.g. transfer(address,uint256)
func FunctionSignature(el ABIElement) string {
	types := make([]string, len(el.Inputs))
	for i, in := range el.Inputs {
		types[i] = canonicalType(in)
	}
	return el.Name + "(" + strings.Join(types, ",") + ")"
}

// Selector returns the 4-byte selector of a signature as 8 lower-case hex chars
func Selector(h Hasher, signature string) string {
	return hex.EncodeToString(h.Keccak256([]byte(signature))[:4])
}

// SelectorsFromABI maps selector to signature for every function entry.
// The result does not depend on the order of the ABI.
func SelectorsFromABI(h Hasher, abi []ABIElement) map[string]string {
	out := make(map[string]string)
	for _, el := range abi {
		if el.Type != "function" {
			continue
		}
		sig := FunctionSignature(el)
		out[Selector(h, sig)] = sig
	}
	return out
}

// SelectorsFromArtifact prefers the compiler's method identifiers and falls
// back to hashing the ABI
func SelectorsFromArtifact(h Hasher, a *Artifact) map[string]string {
	if len(a.MethodIdentifiers) > 0 {
		out := make(map[string]string, len(a.MethodIdentifiers))
		for sel, sig := range a.MethodIdentifiers {
			out[sel] = sig
		}
		return out
	}
	return SelectorsFromABI(h, a.ABI)
}

// SelectorsFromBytecode collects selectors from the dispatcher of deployed
// code. Every PUSH4 immediate counts. Selectors with leading zero bytes are
// pushed with PUSH1 to PUSH3, so those count when the next opcode is the
// dispatcher compare (EQ, GT or LT) and are left-padded to 4 bytes.
// This is a best-effort static scan: push data is skipped so it is never read
// as an opcode, and the trivial 0x00000000 / 0xffffffff masks are ignored.
// Fallback-only routing and diamond proxies are not recognised.
func SelectorsFromBytecode(code []byte) []string {
	code = StripMetadata(code)
	seen := make(map[string]bool)
	for i := 0; i < len(code); i++ {
		op := code[i]
		if op < opPush1 || op > opPush32 {
			continue
		}
		n := int(op-opPush1) + 1
		if op <= opPush4 && i+n < len(code) {
			imm := code[i+1 : i+1+n]
			if op == opPush4 || isDispatchCompare(code, i+1+n) {
				var word [4]byte
				copy(word[4-n:], imm)
				sel := hex.EncodeToString(word[:])
				if sel != "00000000" && sel != "ffffffff" {
					seen[sel] = true
				}
			}
		}
		i += n
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func isDispatchCompare(code []byte, at int) bool {
	if at >= len(code) {
		return false
	}
	switch code[at] {
	case opEQ, opGT, opLT:
		return true
	}
	return false
}

// CompareSelectors checks that every ABI selector is present in the bytecode.
// Missing selectors fail; selectors only found in bytecode warn (internal
// constants also surface as PUSH4, so extras are expected noise).
func CompareSelectors(abiSelectors map[string]string, bytecodeSelectors []string) *AbiResult {
	inCode := make(map[string]bool, len(bytecodeSelectors))
	for _, s := range bytecodeSelectors {
		inCode[s] = true
	}

	res := &AbiResult{AbiSelectors: len(abiSelectors), BytecodeSelectors: len(bytecodeSelectors)}
	for sel, sig := range abiSelectors {
		if !inCode[sel] {
			res.Missing = append(res.Missing, fmt.Sprintf("%s %s", sel, sig))
		}
	}
	sort.Strings(res.Missing)

	extras := 0
	for _, sel := range bytecodeSelectors {
		if _, ok := abiSelectors[sel]; ok {
			continue
		}
		extras++
		if len(res.Extra) < MaxExtraSelectorsToReport {
			res.Extra = append(res.Extra, sel)
		}
	}

	switch {
	case len(res.Missing) > 0:
		res.Status = StatusFail
		res.Message = fmt.Sprintf("%d ABI selector(s) not found in bytecode: %s", len(res.Missing), strings.Join(res.Missing, ", "))
	case extras > 0:
		res.Status = StatusWarn
		more := ""
		if extras > MaxExtraSelectorsToReport {
			more = fmt.Sprintf(" (+%d more)", extras-MaxExtraSelectorsToReport)
		}
		res.Message = fmt.Sprintf("All %d ABI selectors found; %d extra selector(s) in bytecode: %s%s",
			len(abiSelectors), extras, strings.Join(res.Extra, ", "), more)
	default:
		res.Status = StatusPass
		res.Message = fmt.Sprintf("All %d ABI selectors match bytecode", len(abiSelectors))
	}
	return res
}
