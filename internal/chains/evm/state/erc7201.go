// Package state verifies contract storage: explicit slots, ERC-7201
// namespaces and paths through a declared storage schema.
package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// Crypto is the hashing and encoding the storage engine needs
type Crypto interface {
	evm.Hasher
	evm.ABIEncoder
}

// Erc7201BaseSlot returns keccak256(abi.encode(uint256(keccak256(id)) - 1)) & ~bytes32(uint256(0xff)).
// The decrement happens before the second hash and the mask after it.
func Erc7201BaseSlot(h evm.Hasher, namespaceID string) common.Hash {
	n := new(big.Int).SetBytes(h.Keccak256([]byte(namespaceID)))
	n.Sub(n, big.NewInt(1))
	if n.Sign() < 0 {
		n.Add(n, twoTo256)
	}
	slot := common.BytesToHash(h.Keccak256(evm.BigToWord(n)))
	slot[common.HashLength-1] = 0
	return slot
}

// addSlot returns base + n modulo 2^256
func addSlot(base common.Hash, n *big.Int) common.Hash {
	sum := new(big.Int).Add(base.Big(), n)
	sum.Mod(sum, twoTo256)
	return common.BigToHash(sum)
}
