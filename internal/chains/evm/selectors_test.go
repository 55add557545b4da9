package evm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var erc20ABI = []ABIElement{
	{Type: "function", Name: "transfer", Inputs: []ABIParam{{Name: "to", Type: "address"}, {Name: "amount", Type: "uint256"}}},
	{Type: "function", Name: "balanceOf", Inputs: []ABIParam{{Name: "owner", Type: "address"}}},
	{Type: "function", Name: "totalSupply"},
	{Type: "event", Name: "Transfer", Inputs: []ABIParam{{Name: "from", Type: "address", Indexed: true}}},
	{Type: "constructor", Inputs: []ABIParam{{Name: "supply", Type: "uint256"}}},
}

func TestFunctionSignature(t *testing.T) {
	tests := []struct {
		name string
		el   ABIElement
		want string
	}{
		{name: "no inputs", el: ABIElement{Name: "totalSupply"}, want: "totalSupply()"},
		{name: "elementary", el: erc20ABI[0], want: "transfer(address,uint256)"},
		{
			name: "tuple array",
			el: ABIElement{Name: "submit", Inputs: []ABIParam{{
				Type:       "tuple[]",
				Components: []ABIParam{{Type: "uint256"}, {Type: "address"}},
			}}},
			want: "submit((uint256,address)[])",
		},
		{
			name: "nested tuple",
			el: ABIElement{Name: "f", Inputs: []ABIParam{{
				Type: "tuple",
				Components: []ABIParam{
					{Type: "bytes32"},
					{Type: "tuple", Components: []ABIParam{{Type: "bool"}}},
				},
			}}},
			want: "f((bytes32,(bool)))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FunctionSignature(tt.el))
		})
	}
}

func TestSelectorsFromABI(t *testing.T) {
	got := SelectorsFromABI(keccak{}, erc20ABI)
	assert.Equal(t, map[string]string{
		"a9059cbb": "transfer(address,uint256)",
		"70a08231": "balanceOf(address)",
		"18160ddd": "totalSupply()",
	}, got)

	reversed := make([]ABIElement, len(erc20ABI))
	for i, el := range erc20ABI {
		reversed[len(erc20ABI)-1-i] = el
	}
	assert.Equal(t, got, SelectorsFromABI(keccak{}, reversed))
}

func TestSelectorsFromArtifact(t *testing.T) {
	withIDs := &Artifact{ABI: erc20ABI, MethodIdentifiers: map[string]string{"deadbeef": "custom()"}}
	assert.Equal(t, map[string]string{"deadbeef": "custom()"}, SelectorsFromArtifact(keccak{}, withIDs))

	withoutIDs := &Artifact{ABI: erc20ABI}
	assert.Len(t, SelectorsFromArtifact(keccak{}, withoutIDs), 3)
}

func TestSelectorsFromBytecode(t *testing.T) {
	// PUSH4 a9059cbb, PUSH32 hiding a PUSH4-looking sequence, PUSH4 70a08231,
	// PUSH4 ffffffff, then padding
	c := mustHex(t, "0x63a9059cbb14"+
		"7f63deadbeef000000000000000000000000000000000000000000000000000000"+
		"6370a08231"+
		"63ffffffff"+
		"5b5b")

	assert.Equal(t, []string{"70a08231", "a9059cbb"}, SelectorsFromBytecode(c))
	assert.Equal(t, SelectorsFromBytecode(c), SelectorsFromBytecode(withTrailer(t, c)))
}

func TestSelectorsFromBytecode_LeadingZeroSelector(t *testing.T) {
	erc1155 := []ABIElement{{Type: "function", Name: "balanceOf", Inputs: []ABIParam{{Type: "address"}, {Type: "uint256"}}}}
	abiSelectors := SelectorsFromABI(keccak{}, erc1155)
	require.Equal(t, map[string]string{"00fdd58e": "balanceOf(address,uint256)"}, abiSelectors)

	tests := []struct {
		name string
		code string
		want []string
	}{
		{name: "PUSH3 before EQ", code: "8062fdd58e14610040575b5b", want: []string{"00fdd58e"}},
		{name: "PUSH2 before GT", code: "806112341161004057", want: []string{"00001234"}},
		{name: "PUSH3 not compared", code: "62fdd58e505b", want: []string{}},
		{name: "PUSH1 zero mask", code: "80600014", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectorsFromBytecode(mustHex(t, "0x"+tt.code)))
		})
	}

	res := CompareSelectors(abiSelectors, SelectorsFromBytecode(mustHex(t, "0x8062fdd58e14610040575b5b")))
	assert.Equal(t, StatusPass, res.Status, res.Message)
}

func TestSelectorsFromBytecode_TruncatedPush(t *testing.T) {
	assert.Empty(t, SelectorsFromBytecode([]byte{0x5b, 0x63, 0xa9, 0x05}))
}

func TestCompareSelectors(t *testing.T) {
	abiSelectors := SelectorsFromABI(keccak{}, erc20ABI)

	t.Run("exact", func(t *testing.T) {
		res := CompareSelectors(abiSelectors, []string{"18160ddd", "70a08231", "a9059cbb"})
		assert.Equal(t, StatusPass, res.Status)
		assert.Empty(t, res.Missing)
		assert.Empty(t, res.Extra)
	})

	t.Run("missing selector fails", func(t *testing.T) {
		res := CompareSelectors(abiSelectors, []string{"70a08231", "a9059cbb"})
		assert.Equal(t, StatusFail, res.Status)
		assert.Equal(t, []string{"18160ddd totalSupply()"}, res.Missing)
	})

	t.Run("extras warn", func(t *testing.T) {
		res := CompareSelectors(abiSelectors, []string{"18160ddd", "70a08231", "a9059cbb", "12345678"})
		assert.Equal(t, StatusWarn, res.Status)
		assert.Equal(t, []string{"12345678"}, res.Extra)
	})

	t.Run("extras are capped", func(t *testing.T) {
		code := []string{"18160ddd", "70a08231", "a9059cbb"}
		for i := 0; i < MaxExtraSelectorsToReport+2; i++ {
			code = append(code, fmt.Sprintf("0000aa%02x", i))
		}
		res := CompareSelectors(abiSelectors, code)
		require.Equal(t, StatusWarn, res.Status)
		assert.Len(t, res.Extra, MaxExtraSelectorsToReport)
		assert.Contains(t, res.Message, "(+2 more)")
	})
}
