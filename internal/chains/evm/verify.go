package evm

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/ugorji/go/codec"
)

// BytecodeMatchThresholdPercent is the match level at or above which a
// mismatching bytecode is a warning rather than a failure
const BytecodeMatchThresholdPercent = 90

// maxReportedDifferences bounds the differences carried in results
const maxReportedDifferences = 10

// CBOR map headers solc uses for its metadata trailer (1 or 2 entries)
var metadataMapMarkers = []byte{0xa1, 0xa2}

// keys solc writes into the metadata map; a trailer needs at least one
var metadataKeys = map[string]bool{"ipfs": true, "bzzr0": true, "bzzr1": true, "solc": true, "experimental": true}

var cborHandle codec.CborHandle

// ByteDifference is a single differing byte
type ByteDifference struct {
	Offset   int  `json:"offset"`
	Expected byte `json:"expected"`
	Actual   byte `json:"actual"`
}

// ImmutableDifference is a contiguous run of differing bytes
type ImmutableDifference struct {
	Position     int    `json:"position"`
	Length       int    `json:"length"`
	LocalValue   string `json:"localValue"`
	RemoteValue  string `json:"remoteValue"`
	PossibleType string `json:"possibleType,omitempty"`
}

// BytecodeResult is the outcome of an advisory byte-by-byte comparison
type BytecodeResult struct {
	Status               Status                `json:"status"`
	Message              string                `json:"message"`
	LocalLength          int                   `json:"localLength"`
	RemoteLength         int                   `json:"remoteLength"`
	MatchPercent         *int                  `json:"matchPercent,omitempty"`
	Differences          []ByteDifference      `json:"differences,omitempty"`
	ImmutableDifferences []ImmutableDifference `json:"immutableDifferences,omitempty"`
	OnlyImmutablesDiffer bool                  `json:"onlyImmutablesDiffer,omitempty"`
}

// DefinitiveResult is the outcome of the masked comparison
type DefinitiveResult struct {
	Status                Status `json:"status"`
	Message               string `json:"message"`
	ExactMatch            bool   `json:"exactMatch"`
	ImmutablesSubstituted int    `json:"immutablesSubstituted"`
	LibrariesSubstituted  int    `json:"librariesSubstituted"`
	DifferingBytes        int    `json:"differingBytes,omitempty"`
	FirstDifferingOffsets []int  `json:"firstDifferingOffsets,omitempty"`
}

// Metadata is the decoded solc metadata trailer
type Metadata struct {
	Solc string `json:"solc,omitempty"`
	IPFS string `json:"ipfs,omitempty"`
	Bzzr string `json:"bzzr,omitempty"`
}

// metadataStart returns the offset where the CBOR metadata trailer begins.
// The last two bytes hold the trailer length; the trailer must start with a
// CBOR map header, decode to exactly that many bytes and carry a known
// metadata key.
func metadataStart(code []byte) (int, map[string]any, bool) {
	if len(code) < 4 {
		return 0, nil, false
	}
	length := int(binary.BigEndian.Uint16(code[len(code)-2:]))
	start := len(code) - 2 - length
	if length == 0 || start <= 0 {
		return 0, nil, false
	}
	if bytes.IndexByte(metadataMapMarkers, code[start]) == -1 {
		return 0, nil, false
	}

	trailer := code[start : len(code)-2]
	var meta map[string]any
	dec := codec.NewDecoderBytes(trailer, &cborHandle)
	if err := dec.Decode(&meta); err != nil {
		return 0, nil, false
	}
	if dec.NumBytesRead() != len(trailer) {
		return 0, nil, false
	}
	for k := range meta {
		if metadataKeys[k] {
			return start, meta, true
		}
	}
	return 0, nil, false
}

// StripMetadata removes the CBOR metadata appended to bytecode.
// Code without a trailer is returned unchanged.
func StripMetadata(code []byte) []byte {
	start, _, ok := metadataStart(code)
	if !ok {
		return code
	}
	return code[:start]
}

// ParseMetadata decodes the metadata trailer, if present
func ParseMetadata(code []byte) (*Metadata, bool) {
	_, raw, ok := metadataStart(code)
	if !ok {
		return nil, false
	}
	m := &Metadata{}
	for k, v := range raw {
		b, isBytes := v.([]byte)
		switch {
		case k == "solc" && isBytes && len(b) == 3:
			m.Solc = fmt.Sprintf("%d.%d.%d", b[0], b[1], b[2])
		case k == "solc":
			m.Solc = fmt.Sprintf("%v", v)
		case k == "ipfs" && isBytes:
			m.IPFS = hex.EncodeToString(b)
		case strings.HasPrefix(k, "bzzr") && isBytes:
			m.Bzzr = hex.EncodeToString(b)
		}
	}
	return m, true
}

// CheckCompiler reads the metadata of deployed code and compares its solc
// version with the artifact's ("0.8.20+commit.a1b79de6"). It returns the
// metadata, or nil, and a message when the versions differ.
func CheckCompiler(artifactVersion string, deployed []byte) (*Metadata, string) {
	meta, ok := ParseMetadata(deployed)
	if !ok {
		return nil, ""
	}
	local := compilerRelease(artifactVersion)
	remote := compilerRelease(meta.Solc)
	if local == "" || remote == "" || local == remote {
		return meta, ""
	}
	return meta, fmt.Sprintf("compiler mismatch: artifact built with solc %s, deployed code reports %s", local, remote)
}

// compilerRelease drops the leading v and the +commit suffix
func compilerRelease(v string) string {
	v, _, _ = strings.Cut(strings.TrimPrefix(strings.TrimSpace(v), "v"), "+")
	return v
}

// CompareBytecode compares metadata-stripped bytecode byte by byte.
// It is advisory: differences from immutables or library addresses lower the
// match percentage; DefinitiveCompareBytecode explains them.
func CompareBytecode(expected, actual []byte) *BytecodeResult {
	local := StripMetadata(expected)
	remote := StripMetadata(actual)

	result := &BytecodeResult{
		LocalLength:  len(local),
		RemoteLength: len(remote),
	}

	if bytes.Equal(local, remote) {
		full := 100
		result.Status = StatusPass
		result.MatchPercent = &full
		result.Message = "Bytecode matches exactly"
		return result
	}

	if len(local) != len(remote) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("Bytecode length mismatch: local %d bytes, remote %d bytes", len(local), len(remote))
		return result
	}

	regions := differenceRegions(local, remote)
	diffBytes := 0
	for _, r := range regions {
		diffBytes += r.Length
	}
	percent := 0
	if len(local) > 0 {
		percent = int(math.Round(float64(len(local)-diffBytes) / float64(len(local)) * 100))
	}
	// rounding must not report a mismatch as a full match
	if percent == 100 {
		percent = 99
	}
	result.MatchPercent = &percent
	result.ImmutableDifferences = regions

	for i := 0; i < len(local) && len(result.Differences) < maxReportedDifferences; i++ {
		if local[i] != remote[i] {
			result.Differences = append(result.Differences, ByteDifference{Offset: i, Expected: local[i], Actual: remote[i]})
		}
	}

	if percent >= BytecodeMatchThresholdPercent {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Bytecode near match: %d%% match, %d difference region(s)", percent, len(regions))
		return result
	}
	result.Status = StatusFail
	result.Message = fmt.Sprintf("Bytecode mismatch: %d%% match, %d difference region(s)", percent, len(regions))
	return result
}

// differenceRegions groups consecutive differing bytes
func differenceRegions(local, remote []byte) []ImmutableDifference {
	var regions []ImmutableDifference
	n := min(len(local), len(remote))
	start := -1
	flush := func(end int) {
		regions = append(regions, ImmutableDifference{
			Position:     start,
			Length:       end - start,
			LocalValue:   hex.EncodeToString(local[start:end]),
			RemoteValue:  hex.EncodeToString(remote[start:end]),
			PossibleType: guessType(end-start, remote[start:end]),
		})
		start = -1
	}
	for i := 0; i < n; i++ {
		differs := local[i] != remote[i]
		switch {
		case differs && start == -1:
			start = i
		case !differs && start != -1:
			flush(i)
		}
	}
	if start != -1 {
		flush(n)
	}
	return regions
}

func guessType(length int, value []byte) string {
	switch {
	case length == 20:
		return "address"
	case length == WordSize && bytes.Equal(value[:12], make([]byte, 12)):
		return "address"
	case length <= 8:
		return fmt.Sprintf("uint%d", length*8)
	case length == WordSize:
		return "bytes32 or uint256"
	}
	return ""
}

// DefinitiveCompareBytecode substitutes every immutable and linked-library
// range of the expected code with the bytes found in the actual code, then
// requires an exact match. A pass means the code itself is identical.
func DefinitiveCompareBytecode(expected, actual []byte, immutables []ImmutableReference, links LinkReferences) (*DefinitiveResult, error) {
	local := StripMetadata(expected)
	remote := StripMetadata(actual)

	if len(local) != len(remote) {
		return &DefinitiveResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("Bytecode length mismatch: local %d bytes, remote %d bytes", len(local), len(remote)),
		}, nil
	}

	substituted := make([]byte, len(local))
	copy(substituted, local)

	result := &DefinitiveResult{}
	for _, ref := range immutables {
		if err := substitute(substituted, remote, ref.Start, ref.Length); err != nil {
			return nil, fmt.Errorf("immutable %s: %w", ref.Name, err)
		}
		result.ImmutablesSubstituted++
	}
	for name, offsets := range links {
		for _, o := range offsets {
			if err := substitute(substituted, remote, o.Start, o.Length); err != nil {
				return nil, fmt.Errorf("library %s: %w", name, err)
			}
			result.LibrariesSubstituted++
		}
	}

	if bytes.Equal(substituted, remote) {
		result.Status = StatusPass
		result.ExactMatch = true
		result.Message = fmt.Sprintf("Bytecode matches exactly after substituting %d immutable(s) and %d library reference(s)",
			result.ImmutablesSubstituted, result.LibrariesSubstituted)
		return result, nil
	}

	for i := range substituted {
		if substituted[i] != remote[i] {
			result.DifferingBytes++
			if len(result.FirstDifferingOffsets) < maxReportedDifferences {
				result.FirstDifferingOffsets = append(result.FirstDifferingOffsets, i)
			}
		}
	}
	positions := make([]string, len(result.FirstDifferingOffsets))
	for i, p := range result.FirstDifferingOffsets {
		positions[i] = fmt.Sprintf("%d", p)
	}
	more := ""
	if result.DifferingBytes > maxReportedDifferences {
		more = "..."
	}
	result.Status = StatusFail
	result.Message = fmt.Sprintf("Bytecode mismatch after substitution: %d bytes differ at positions %s%s",
		result.DifferingBytes, strings.Join(positions, ", "), more)
	return result, nil
}

func substitute(dst, src []byte, start, length int) error {
	if start < 0 || length <= 0 || start+length > len(dst) {
		return fmt.Errorf("%w: %d+%d exceeds %d bytes", ErrOffsetOutOfRange, start, length, len(dst))
	}
	copy(dst[start:start+length], src[start:start+length])
	return nil
}
