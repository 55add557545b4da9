package state

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

// AddressFormatter renders addresses in their checksummed form
type AddressFormatter interface {
	ChecksumAddress(addr string) (string, error)
}

// DecodeSlotValue extracts a value of type typ stored offset bytes from the
// low-order end of word. Addresses are checksummed, bools are true when any
// bit is set, integers are decimal strings (signed ones two's complement),
// everything else is 0x-prefixed hex.
func DecodeSlotValue(f AddressFormatter, word common.Hash, typ string, offset int) (any, error) {
	width := evm.TypeByteWidth(typ)
	start := evm.WordSize - offset - width
	if offset < 0 || start < 0 {
		return nil, fmt.Errorf("%w: %s at byte offset %d does not fit in a slot", evm.ErrOffsetOutOfRange, typ, offset)
	}
	raw := word[start : evm.WordSize-offset]

	switch {
	case typ == "address":
		return f.ChecksumAddress(evm.Hex0x(raw))
	case typ == "bool":
		for _, b := range raw {
			if b != 0 {
				return true, nil
			}
		}
		return false, nil
	case strings.HasPrefix(typ, "uint"):
		return new(big.Int).SetBytes(raw).String(), nil
	case strings.HasPrefix(typ, "int"):
		n := new(big.Int).SetBytes(raw)
		bits := uint(width * 8)
		if n.Bit(int(bits)-1) == 1 {
			n.Sub(n, new(big.Int).Lsh(big.NewInt(1), bits))
		}
		return n.String(), nil
	}
	return evm.Hex0x(raw), nil
}
