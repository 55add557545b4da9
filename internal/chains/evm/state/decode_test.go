package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

func TestDecodeSlotValue(t *testing.T) {
	var packed common.Hash
	packed[31] = 0x2a // uint8 at offset 0
	packed[30] = 0xff // int8 -1 at offset 1
	packed[28] = 0x01 // uint16 256 at offset 2
	packed[23] = 0x01 // bool at offset 8
	copy(packed[0:4], []byte{0xde, 0xad, 0xbe, 0xef})

	addr := common.BytesToHash(common.FromHex("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))

	tests := []struct {
		name   string
		word   common.Hash
		typ    string
		offset int
		want   any
	}{
		{"uint8", packed, "uint8", 0, "42"},
		{"int8 negative", packed, "int8", 1, "-1"},
		{"uint16", packed, "uint16", 2, "256"},
		{"bool true", packed, "bool", 8, true},
		{"bool false", packed, "bool", 9, false},
		{"bytes4 high end", packed, "bytes4", 28, "0xdeadbeef"},
		{"address checksummed", addr, "address", 0, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{"uint256 whole word", slotN(1000), "uint256", 0, "1000"},
		{"int256 positive", slotN(7), "int256", 0, "7"},
	}

	r := newFakeReader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSlotValue(r, tt.word, tt.typ, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeSlotValueOutOfRange(t *testing.T) {
	r := newFakeReader()

	_, err := DecodeSlotValue(r, common.Hash{}, "uint16", 31)
	assert.ErrorIs(t, err, evm.ErrOffsetOutOfRange)

	_, err = DecodeSlotValue(r, common.Hash{}, "address", 13)
	assert.ErrorIs(t, err, evm.ErrOffsetOutOfRange)

	_, err = DecodeSlotValue(r, common.Hash{}, "uint8", -1)
	assert.ErrorIs(t, err, evm.ErrOffsetOutOfRange)
}
