package evm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMetadata(t *testing.T) {
	body := code(64)

	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{name: "no trailer", input: body, want: body},
		{name: "solc trailer", input: withTrailer(t, body), want: body},
		{name: "too short", input: []byte{0x00, 0x01}, want: []byte{0x00, 0x01}},
		// length points at a byte that is not a CBOR map header
		{name: "bad marker", input: append(code(10), 0x60, 0x00, 0x03), want: append(code(10), 0x60, 0x00, 0x03)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMetadata(tt.input))
		})
	}
}

func TestStripMetadata_Idempotent(t *testing.T) {
	inputs := [][]byte{
		code(40),
		withTrailer(t, code(40)),
		{0xa2, 0x00, 0x01},
		// nested maps with empty keys look like a trailer but carry no solc key
		mustHex(t, "0x5b5ba160600003a160600003"),
	}
	for _, input := range inputs {
		once := StripMetadata(input)
		assert.Equal(t, once, StripMetadata(once))
	}
}

func TestStripMetadata_RequiresKnownKey(t *testing.T) {
	c := mustHex(t, "0x5b5ba160600003")
	assert.Equal(t, c, StripMetadata(c))

	// {"solc": h'000814'}
	solcOnly := mustHex(t, "0x5b5ba164736f6c6343000814000a")
	assert.Equal(t, []byte{0x5b, 0x5b}, StripMetadata(solcOnly))
}

func TestCheckCompiler(t *testing.T) {
	deployed := withTrailer(t, code(16))

	tests := []struct {
		name     string
		version  string
		mismatch string
	}{
		{name: "same release", version: "0.8.20+commit.a1b79de6"},
		{name: "v prefix", version: "v0.8.20"},
		{name: "unknown artifact version", version: ""},
		{name: "different release", version: "0.8.19+commit.7dd6d404", mismatch: "compiler mismatch: artifact built with solc 0.8.19, deployed code reports 0.8.20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, mismatch := CheckCompiler(tt.version, deployed)
			require.NotNil(t, meta)
			assert.Equal(t, "0.8.20", meta.Solc)
			assert.Equal(t, tt.mismatch, mismatch)
		})
	}

	meta, mismatch := CheckCompiler("0.8.19", code(16))
	assert.Nil(t, meta)
	assert.Empty(t, mismatch)
}

func TestParseMetadata(t *testing.T) {
	meta, ok := ParseMetadata(withTrailer(t, code(16)))
	require.True(t, ok)
	assert.Equal(t, "0.8.20", meta.Solc)
	assert.Equal(t, "122000112233445566778899aabbccddeeff00112233445566778899aabbccddeeff", meta.IPFS)

	_, ok = ParseMetadata(code(16))
	assert.False(t, ok)
}

func TestCompareBytecode(t *testing.T) {
	withDiffs := func(n, diffs int) []byte {
		c := code(n)
		for i := 0; i < diffs; i++ {
			c[i*2] = 0x00
		}
		return c
	}

	tests := []struct {
		name       string
		expected   []byte
		actual     []byte
		wantStatus Status
		wantPct    *int
	}{
		{name: "identical", expected: code(100), actual: code(100), wantStatus: StatusPass, wantPct: intPtr(100)},
		{name: "metadata only differs", expected: withTrailer(t, code(100)), actual: code(100), wantStatus: StatusPass, wantPct: intPtr(100)},
		{name: "length mismatch", expected: code(100), actual: code(90), wantStatus: StatusFail},
		{name: "one byte in a hundred", expected: code(100), actual: withDiffs(100, 1), wantStatus: StatusWarn, wantPct: intPtr(99)},
		{name: "one byte in a thousand never rounds to full", expected: code(1000), actual: withDiffs(1000, 1), wantStatus: StatusWarn, wantPct: intPtr(99)},
		{name: "at threshold", expected: code(100), actual: withDiffs(100, 10), wantStatus: StatusWarn, wantPct: intPtr(90)},
		{name: "below threshold", expected: code(100), actual: withDiffs(100, 20), wantStatus: StatusFail, wantPct: intPtr(80)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CompareBytecode(tt.expected, tt.actual)
			assert.Equal(t, tt.wantStatus, res.Status)
			if tt.wantPct == nil {
				assert.Nil(t, res.MatchPercent)
				return
			}
			require.NotNil(t, res.MatchPercent)
			assert.Equal(t, *tt.wantPct, *res.MatchPercent)
		})
	}
}

func TestCompareBytecode_DifferenceRegions(t *testing.T) {
	local := code(64)
	remote := code(64)
	copy(remote[10:30], mustHex(t, "0x1111111111111111111111111111111111111111"))
	remote[40] = 0x01

	res := CompareBytecode(local, remote)
	require.Len(t, res.ImmutableDifferences, 2)
	assert.Equal(t, 10, res.ImmutableDifferences[0].Position)
	assert.Equal(t, 20, res.ImmutableDifferences[0].Length)
	assert.Equal(t, "address", res.ImmutableDifferences[0].PossibleType)
	assert.Equal(t, 40, res.ImmutableDifferences[1].Position)
	assert.Equal(t, "uint8", res.ImmutableDifferences[1].PossibleType)
	assert.Len(t, res.Differences, maxReportedDifferences)
}

func TestDefinitiveCompareBytecode(t *testing.T) {
	local := code(96)
	remote := code(96)
	copy(remote[4:36], Pad32(mustHex(t, "0x00000000000000000000000000000000000000aa")))
	copy(remote[50:70], mustHex(t, "0x2222222222222222222222222222222222222222"))

	refs := []ImmutableReference{{Name: "owner", Start: 4, Length: 32}}
	links := LinkReferences{"src/Lib.sol:Lib": {{Start: 50, Length: 20}}}

	t.Run("differences confined to masked ranges", func(t *testing.T) {
		res, err := DefinitiveCompareBytecode(local, withTrailer(t, remote), refs, links)
		require.NoError(t, err)
		assert.Equal(t, StatusPass, res.Status)
		assert.True(t, res.ExactMatch)
		assert.Equal(t, 1, res.ImmutablesSubstituted)
		assert.Equal(t, 1, res.LibrariesSubstituted)
	})

	t.Run("byte outside masked ranges", func(t *testing.T) {
		tampered := append([]byte(nil), remote...)
		tampered[80] = 0x00

		res, err := DefinitiveCompareBytecode(local, tampered, refs, links)
		require.NoError(t, err)
		assert.Equal(t, StatusFail, res.Status)
		assert.False(t, res.ExactMatch)
		assert.Equal(t, 1, res.DifferingBytes)
		assert.Equal(t, []int{80}, res.FirstDifferingOffsets)
		assert.Contains(t, res.Message, "positions 80")
	})

	t.Run("library range not declared", func(t *testing.T) {
		res, err := DefinitiveCompareBytecode(local, remote, refs, nil)
		require.NoError(t, err)
		assert.Equal(t, StatusFail, res.Status)
		assert.Equal(t, 20, res.DifferingBytes)
	})

	t.Run("length mismatch", func(t *testing.T) {
		res, err := DefinitiveCompareBytecode(local, code(95), refs, links)
		require.NoError(t, err)
		assert.Equal(t, StatusFail, res.Status)
		assert.Contains(t, res.Message, "length mismatch")
	})

	t.Run("reference out of range", func(t *testing.T) {
		_, err := DefinitiveCompareBytecode(local, remote, []ImmutableReference{{Name: "x", Start: 90, Length: 32}}, nil)
		require.ErrorIs(t, err, ErrOffsetOutOfRange)
	})
}

func intPtr(v int) *int {
	return &v
}
