package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

func TestErc7201BaseSlot(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{evm.OZInitializableNamespace, "0xf0c57e16840df040f15088dc2f81fe391c3923bec73e23a9662efc9c229c6a00"},
		{"example.main", "0x183a6125c38840424c4a85fa12bab2ab606c4b6d0e7cc73c0c06ba5300eab500"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, Erc7201BaseSlot(testCrypto, tt.id).Hex())
		})
	}
}

func TestErc7201LowByteIsZero(t *testing.T) {
	for _, id := range []string{"a", "my.app.storage", "openzeppelin.storage.Ownable", "x.y.z.1"} {
		slot := Erc7201BaseSlot(testCrypto, id)
		assert.Equal(t, byte(0), slot[common.HashLength-1], id)
	}
}

func TestErc7201MatchesOZConstant(t *testing.T) {
	assert.Equal(t, evm.OZInitializableV5.Slot, Erc7201BaseSlot(testCrypto, evm.OZInitializableNamespace))
}

func TestAddSlotWraps(t *testing.T) {
	max := common.BigToHash(new(big.Int).Sub(twoTo256, big.NewInt(1)))
	assert.Equal(t, common.Hash{}, addSlot(max, big.NewInt(1)))
	assert.Equal(t, slotN(5), addSlot(slotN(2), big.NewInt(3)))
}
