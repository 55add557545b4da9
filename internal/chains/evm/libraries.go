package evm

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Library placeholder pattern: __$<34 hex chars>$__
var libraryPlaceholder = regexp.MustCompile(`__\$[a-fA-F0-9]{34}\$__`)

// LibraryResult is the check of one linked library reference
type LibraryResult struct {
	Library  string `json:"library"`
	Offset   int    `json:"offset"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Status   Status `json:"status"`
}

// LibrariesResult aggregates linked library checks
type LibrariesResult struct {
	Status  Status          `json:"status"`
	Message string          `json:"message"`
	Results []LibraryResult `json:"results"`
}

// LibraryPlaceholder returns the solc placeholder for a fully-qualified
// library name: the first 17 bytes of keccak256(name) wrapped in __$...$__
func LibraryPlaceholder(h Hasher, fullyQualifiedName string) string {
	return "__$" + hex.EncodeToString(h.Keccak256([]byte(fullyQualifiedName))[:17]) + "$__"
}

// HasLibraryPlaceholders checks if hex bytecode contains library placeholders
func HasLibraryPlaceholders(hexCode string) bool {
	return libraryPlaceholder.MatchString(hexCode)
}

// DetectUnlinkedLibraries returns the distinct placeholders still present in
// hex bytecode, in order of first appearance
func DetectUnlinkedLibraries(hexCode string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range libraryPlaceholder.FindAllString(hexCode, -1) {
		m = strings.ToLower(m)
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// LinkLibraries replaces each library's placeholder with its 20-byte address.
// Libraries are keyed by fully-qualified name ("path/File.sol:Lib").
func LinkLibraries(h Hasher, hexCode string, addresses map[string]string) (string, error) {
	linked := NormalizeHex(hexCode)
	for name, addr := range addresses {
		a := NormalizeHex(addr)
		if !addressPattern.MatchString("0x" + a) {
			return "", fmt.Errorf("library %s: invalid address %q", name, addr)
		}
		placeholder := strings.ToLower(LibraryPlaceholder(h, name))
		linked = strings.ReplaceAll(linked, placeholder, a)
	}
	return linked, nil
}

// VerifyLinkedLibraries reads the address burned into the deployed code at
// every reference offset. Any mismatch fails: a wrong library address is a
// security defect, never a warning.
func VerifyLinkedLibraries(deployed []byte, refs LinkReferences, expected map[string]string) (*LibrariesResult, error) {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &LibrariesResult{Status: StatusPass}
	failed := 0
	for _, name := range names {
		want, ok := lookupLibrary(expected, name)
		for _, o := range refs[name] {
			raw, err := readRange(deployed, o.Start, 20)
			if err != nil {
				return nil, fmt.Errorf("library %s: %w", name, err)
			}
			r := LibraryResult{Library: name, Offset: o.Start, Actual: Hex0x(raw), Status: StatusPass}
			if ok {
				r.Expected = "0x" + NormalizeHex(want)
			}
			if !ok || !strings.EqualFold(r.Expected, r.Actual) {
				r.Status = StatusFail
				failed++
			}
			out.Results = append(out.Results, r)
		}
	}

	switch {
	case len(out.Results) == 0:
		out.Status = StatusSkip
		out.Message = "No linked libraries"
	case failed > 0:
		out.Status = StatusFail
		out.Message = fmt.Sprintf("%d/%d library reference(s) point to an unexpected address", failed, len(out.Results))
	default:
		out.Message = fmt.Sprintf("All %d library reference(s) verified", len(out.Results))
	}
	return out, nil
}

// lookupLibrary accepts either the fully-qualified name or the bare library name
func lookupLibrary(expected map[string]string, fullyQualified string) (string, bool) {
	if v, ok := expected[fullyQualified]; ok {
		return v, true
	}
	if i := strings.LastIndex(fullyQualified, ":"); i >= 0 {
		v, ok := expected[fullyQualified[i+1:]]
		return v, ok
	}
	return "", false
}
