package evm

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// ABIEncoder ABI-encodes values (abi.encode semantics)
type ABIEncoder interface {
	EncodeABI(types []string, values []any) ([]byte, error)
}

// ImmutableValueResult is the check of one named immutable
type ImmutableValueResult struct {
	Name     string `json:"name"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
}

// ImmutableValuesResult aggregates named immutable checks
type ImmutableValuesResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message"`
	Results []ImmutableValueResult `json:"results"`
}

// ArgsValidation is the cross-check of constructor arguments against the
// immutable values found in deployed code. It never fails a contract.
type ArgsValidation struct {
	Status              Status   `json:"status"`
	Message             string   `json:"message"`
	Details             []string `json:"details,omitempty"`
	UnreferencedArgs    []int    `json:"unreferencedArgs,omitempty"`
	UnmatchedImmutables []string `json:"unmatchedImmutables,omitempty"`
}

// GroupedImmutableDifference collects the difference fragments that fall in
// one declared immutable range
type GroupedImmutableDifference struct {
	Index        int                   `json:"index"`
	RefStart     int                   `json:"refStart"`
	RefLength    int                   `json:"refLength"`
	FullValue    string                `json:"fullValue"`
	IsFragmented bool                  `json:"isFragmented"`
	Fragments    []ImmutableDifference `json:"fragments"`
}

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// readRange returns code[start:start+length] or ErrOffsetOutOfRange
func readRange(code []byte, start, length int) ([]byte, error) {
	if start < 0 || length <= 0 || start+length > len(code) {
		return nil, fmt.Errorf("%w: %d+%d exceeds %d bytes", ErrOffsetOutOfRange, start, length, len(code))
	}
	return code[start : start+length], nil
}

// immutableValues reads the value of each named immutable from its first
// reference, in first-offset order
func immutableValues(deployed []byte, refs []ImmutableReference) ([]string, map[string][]byte, error) {
	sorted := append([]ImmutableReference(nil), refs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var names []string
	values := make(map[string][]byte)
	for _, ref := range sorted {
		v, err := readRange(deployed, ref.Start, ref.Length)
		if err != nil {
			return nil, nil, fmt.Errorf("immutable %s: %w", ref.Name, err)
		}
		if _, ok := values[ref.Name]; ok {
			continue
		}
		names = append(names, ref.Name)
		values[ref.Name] = Pad32(v)
	}
	return names, values, nil
}

// expectedWord converts a configured immutable value to its 32-byte form
func expectedWord(v any) ([]byte, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return BigToWord(big.NewInt(1)), true
		}
		return make([]byte, WordSize), true
	case []byte:
		return Pad32(x), true
	}
	s := NormalizeForComparison(v)
	switch s {
	case "true":
		return BigToWord(big.NewInt(1)), true
	case "false":
		return make([]byte, WordSize), true
	}
	if addressPattern.MatchString(s) {
		b, err := HexToBytes(s)
		return Pad32(b), err == nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if ok {
		if n.Sign() < 0 {
			n.Add(n, twoTo256)
		}
		if n.BitLen() > 256 {
			return nil, false
		}
		return BigToWord(n), true
	}
	// raw hex wider than a uint256 (unlikely) or bytesN literal
	if strings.HasPrefix(strings.ToLower(fmt.Sprint(v)), "0x") {
		b, err := HexToBytes(fmt.Sprint(v))
		if err == nil && len(b) <= WordSize {
			return Pad32(b), true
		}
	}
	return nil, false
}

// VerifyImmutableValues reads each named immutable from the deployed code and
// compares it to the configured value. Addresses compare on their low 20 bytes.
func VerifyImmutableValues(deployed []byte, refs []ImmutableReference, expected map[string]any) (*ImmutableValuesResult, error) {
	_, values, err := immutableValues(deployed, refs)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &ImmutableValuesResult{Status: StatusPass}
	passed := 0
	for _, name := range names {
		want := expected[name]
		r := ImmutableValueResult{Name: name, Expected: fmt.Sprint(want)}

		actual, ok := values[name]
		if !ok {
			r.Status = StatusFail
			r.Message = fmt.Sprintf("%s: no immutable reference with this name in artifact", name)
			out.Results = append(out.Results, r)
			continue
		}
		r.Actual = Hex0x(actual)

		wantWord, ok := expectedWord(want)
		switch {
		case !ok:
			r.Status = StatusFail
			r.Message = fmt.Sprintf("%s: cannot interpret expected value %v", name, want)
		case addressPattern.MatchString(NormalizeForComparison(want)) && bytes.Equal(actual[12:], wantWord[12:]):
			r.Status = StatusPass
		case bytes.Equal(actual, wantWord):
			r.Status = StatusPass
		default:
			r.Status = StatusFail
		}
		if r.Status == StatusPass {
			passed++
			r.Message = fmt.Sprintf("%s = %s", name, FormatForDisplay(r.Actual))
		} else if r.Message == "" {
			r.Message = fmt.Sprintf("%s: expected %s, got %s", name, FormatForDisplay(Hex0x(wantWord)), FormatForDisplay(r.Actual))
		}
		out.Results = append(out.Results, r)
	}

	if passed == len(names) {
		out.Message = fmt.Sprintf("All %d named immutables verified", len(names))
	} else {
		out.Status = StatusFail
		out.Message = fmt.Sprintf("%d/%d named immutables verified", passed, len(names))
	}
	return out, nil
}

// headWords returns how many head words a parameter occupies and whether its
// value is placed inline (static elementary type)
func headWords(p ABIParam) (int, bool) {
	t := p.Type
	if IsValueType(t) {
		return 1, true
	}
	if t == "string" || t == "bytes" || strings.HasSuffix(t, "[]") {
		return 1, false
	}
	if strings.HasPrefix(t, "tuple") && !strings.HasSuffix(t, "]") {
		words := 0
		for _, c := range p.Components {
			n, inline := headWords(c)
			if !inline && !isStaticComposite(c) {
				return 1, false
			}
			words += n
		}
		return words, false
	}
	// fixed-size array T[k]
	if i := strings.LastIndex(t, "["); i > 0 && strings.HasSuffix(t, "]") {
		var k int
		if _, err := fmt.Sscanf(t[i:], "[%d]", &k); err == nil {
			elem := p
			elem.Type = t[:i]
			n, inline := headWords(elem)
			if !inline && !isStaticComposite(elem) {
				return 1, false
			}
			return n * k, false
		}
	}
	return 1, false
}

func isStaticComposite(p ABIParam) bool {
	t := p.Type
	if t == "string" || t == "bytes" || strings.HasSuffix(t, "[]") {
		return false
	}
	if strings.HasPrefix(t, "tuple") && !strings.HasSuffix(t, "]") {
		for _, c := range p.Components {
			if !IsValueType(c.Type) && !isStaticComposite(c) {
				return false
			}
		}
		return true
	}
	if i := strings.LastIndex(t, "["); i > 0 {
		elem := p
		elem.Type = t[:i]
		return IsValueType(elem.Type) || isStaticComposite(elem)
	}
	return IsValueType(t)
}

// ValidateImmutablesAgainstArgs ABI-encodes the constructor arguments and
// matches each encoded static argument against the immutable values read
// from the deployed code. Arguments no immutable references, and immutables
// matching no argument, produce a warning.
func ValidateImmutablesAgainstArgs(enc ABIEncoder, deployed []byte, refs []ImmutableReference, constructor ABIElement, args []any) *ArgsValidation {
	if len(args) != len(constructor.Inputs) {
		return &ArgsValidation{
			Status:  StatusWarn,
			Message: fmt.Sprintf("constructor declares %d input(s) but %d arg(s) were supplied", len(constructor.Inputs), len(args)),
		}
	}
	if len(args) == 0 {
		return &ArgsValidation{Status: StatusPass, Message: "No constructor args to validate"}
	}

	types := make([]string, len(constructor.Inputs))
	for i, in := range constructor.Inputs {
		types[i] = canonicalType(in)
	}
	encoded, err := enc.EncodeABI(types, args)
	if err != nil {
		return &ArgsValidation{Status: StatusWarn, Message: fmt.Sprintf("could not encode constructor args: %v", err)}
	}

	names, values, err := immutableValues(deployed, refs)
	if err != nil {
		return &ArgsValidation{Status: StatusWarn, Message: err.Error()}
	}

	// word position of each inline argument
	argWord := make(map[int][]byte)
	word := 0
	for i, in := range constructor.Inputs {
		n, inline := headWords(in)
		if inline && (word+1)*WordSize <= len(encoded) {
			argWord[i] = encoded[word*WordSize : (word+1)*WordSize]
		}
		word += n
	}

	v := &ArgsValidation{}
	referenced := make(map[int]bool)
	for _, name := range names {
		matched := false
		for i := range constructor.Inputs {
			w, ok := argWord[i]
			if ok && bytes.Equal(w, values[name]) {
				referenced[i] = true
				matched = true
				v.Details = append(v.Details, fmt.Sprintf("✓ immutable %s matches arg[%d] (%s)", name, i, argLabel(constructor.Inputs[i])))
			}
		}
		if !matched {
			v.UnmatchedImmutables = append(v.UnmatchedImmutables, name)
			v.Details = append(v.Details, fmt.Sprintf("✗ immutable %s = %s matches no constructor arg", name, FormatForDisplay(Hex0x(values[name]))))
		}
	}
	for i := range constructor.Inputs {
		if _, inline := argWord[i]; !inline {
			v.Details = append(v.Details, fmt.Sprintf("- arg[%d] (%s) is not stored inline, not checked", i, argLabel(constructor.Inputs[i])))
			continue
		}
		if !referenced[i] {
			v.UnreferencedArgs = append(v.UnreferencedArgs, i)
			v.Details = append(v.Details, fmt.Sprintf("✗ arg[%d] (%s) is not referenced by any immutable", i, argLabel(constructor.Inputs[i])))
		}
	}

	if len(v.UnreferencedArgs) == 0 && len(v.UnmatchedImmutables) == 0 {
		v.Status = StatusPass
		v.Message = fmt.Sprintf("All %d immutable value(s) match constructor args", len(names))
		return v
	}
	v.Status = StatusWarn
	var parts []string
	if len(v.UnreferencedArgs) > 0 {
		labels := make([]string, len(v.UnreferencedArgs))
		for i, idx := range v.UnreferencedArgs {
			labels[i] = fmt.Sprintf("arg[%d] %s", idx, argLabel(constructor.Inputs[idx]))
		}
		parts = append(parts, "unreferenced constructor args: "+strings.Join(labels, ", "))
	}
	if len(v.UnmatchedImmutables) > 0 {
		parts = append(parts, "immutables matching no arg: "+strings.Join(v.UnmatchedImmutables, ", "))
	}
	v.Message = fmt.Sprintf("%d/%d immutable value(s) matched constructor args; %s",
		len(names)-len(v.UnmatchedImmutables), len(names), strings.Join(parts, "; "))
	return v
}

func argLabel(p ABIParam) string {
	if p.Name == "" {
		return p.Type
	}
	return p.Type + " " + p.Name
}

// GroupImmutableDifferences assigns difference fragments to the declared
// immutable range they start in. Grouping follows the reference ranges, not
// proximity of the fragments.
func GroupImmutableDifferences(diffs []ImmutableDifference, refs []ImmutableReference, remote []byte) []GroupedImmutableDifference {
	stripped := StripMetadata(remote)
	sorted := append([]ImmutableReference(nil), refs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var groups []GroupedImmutableDifference
	index := 1
	for _, ref := range sorted {
		end := ref.Start + ref.Length
		var fragments []ImmutableDifference
		for _, d := range diffs {
			if d.Position >= ref.Start && d.Position < end {
				fragments = append(fragments, d)
			}
		}
		if len(fragments) == 0 {
			continue
		}
		sort.Slice(fragments, func(i, j int) bool { return fragments[i].Position < fragments[j].Position })

		full := ""
		if end <= len(stripped) {
			full = fmt.Sprintf("%x", stripped[ref.Start:end])
		}
		groups = append(groups, GroupedImmutableDifference{
			Index:        index,
			RefStart:     ref.Start,
			RefLength:    ref.Length,
			FullValue:    full,
			IsFragmented: len(fragments) > 1,
			Fragments:    fragments,
		})
		index++
	}
	return groups
}

// FormatGroupedImmutables renders grouped differences, one block per immutable
func FormatGroupedImmutables(groups []GroupedImmutableDifference) []string {
	var lines []string
	for _, g := range groups {
		display := strings.TrimLeft(g.FullValue, "0")
		if display == "" {
			display = "0"
		}
		var hint string
		switch {
		case g.RefLength == WordSize && len(display) <= 40:
			hint = "address"
		case g.RefLength == WordSize:
			hint = "bytes32/uint256"
		default:
			hint = fmt.Sprintf("%d bytes", g.RefLength)
		}

		if !g.IsFragmented {
			lines = append(lines, fmt.Sprintf("%d) Position %d: 0x%s (%s)", g.Index, g.Fragments[0].Position, display, hint))
			continue
		}
		lines = append(lines, fmt.Sprintf("%d) Fragmented immutable at position %d (%s):", g.Index, g.RefStart, hint))
		lines = append(lines, fmt.Sprintf("   Full value: 0x%s", display))
		for i, f := range g.Fragments {
			lines = append(lines, fmt.Sprintf("   %d.%d) Position %d: %s", g.Index, i+1, f.Position, f.RemoteValue))
		}
	}
	return lines
}
