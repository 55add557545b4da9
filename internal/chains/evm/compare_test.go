package evm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeForComparison(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{name: "nil", input: nil, want: ""},
		{name: "mixed case address", input: "0xAbCdEf0123456789abcdef0123456789ABCDEF01", want: "0xabcdef0123456789abcdef0123456789abcdef01"},
		{name: "hex number", input: "0x10", want: "16"},
		{name: "decimal with spaces", input: " 42 ", want: "42"},
		{name: "scientific", input: "1e18", want: "1000000000000000000"},
		{name: "fractional", input: 1.5, want: "1.5"},
		{name: "integral float", input: float64(100), want: "100"},
		{name: "bool", input: true, want: "true"},
		{name: "bool string", input: "TRUE", want: "true"},
		{name: "big int", input: big.NewInt(7), want: "7"},
		{name: "uint8", input: uint8(255), want: "255"},
		{name: "bytes", input: []byte{0xde, 0xad}, want: "0xdead"},
		{name: "list", input: []any{1, "0x2", "x"}, want: "[1,2,x]"},
		{name: "plain string", input: "hello", want: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeForComparison(tt.input))
		})
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		op       Operator
		want     bool
	}{
		{name: "hex equals decimal", expected: "100", actual: "0x64", op: OpEq, want: true},
		{name: "default operator is eq", expected: 1, actual: "1", op: "", want: true},
		{name: "scientific equals big int", expected: "1e18", actual: new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), op: OpEq, want: true},
		{name: "gt", expected: 10, actual: 11, op: OpGt, want: true},
		{name: "gt equal", expected: 10, actual: 10, op: OpGt, want: false},
		{name: "gte", expected: 10, actual: 10, op: OpGte, want: true},
		{name: "lt", expected: "0x10", actual: 15, op: OpLt, want: true},
		{name: "lte", expected: 15, actual: 16, op: OpLte, want: false},
		{name: "negative ordering", expected: -5, actual: -6, op: OpLt, want: true},
		{name: "non-numeric ordering falls back to equality", expected: "abc", actual: "abc", op: OpGt, want: true},
		{name: "contains", expected: "lo", actual: "hello", op: OpContains, want: true},
		{name: "address case", expected: "0xABCDEF0123456789ABCDEF0123456789ABCDEF01", actual: "0xabcdef0123456789abcdef0123456789abcdef01", op: OpEq, want: true},
		{name: "mismatch", expected: "1", actual: "2", op: OpEq, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareValues(tt.expected, tt.actual, tt.op))
		})
	}
}

func TestValidOperator(t *testing.T) {
	for _, op := range []Operator{"", OpEq, OpGt, OpGte, OpLt, OpLte, OpContains} {
		assert.True(t, ValidOperator(op), op)
	}
	assert.False(t, ValidOperator("neq"))
}

func TestFormatForDisplay(t *testing.T) {
	assert.Equal(t, "<nil>", FormatForDisplay(nil))
	assert.Equal(t, "short", FormatForDisplay("short"))
	assert.Equal(t, "42", FormatForDisplay(42))
	assert.Equal(t, "0xabcdef01...abcdef01", FormatForDisplay("0xabcdef0123456789abcdef0123456789abcdef01"))
	assert.Equal(t, "0x01020304...090a0b0c", FormatForDisplay([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}))
}
