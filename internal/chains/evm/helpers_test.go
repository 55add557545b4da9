package evm

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// keccak is the Hasher used across the package tests
type keccak struct{}

func (keccak) Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// wordEncoder ABI-encodes static value types only
type wordEncoder struct{}

func (wordEncoder) EncodeABI(types []string, values []any) ([]byte, error) {
	var out []byte
	for i, t := range types {
		switch {
		case t == "address":
			b, err := HexToBytes(values[i].(string))
			if err != nil {
				return nil, err
			}
			out = append(out, Pad32(b)...)
		case t == "bool":
			w := make([]byte, WordSize)
			if values[i].(bool) {
				w[WordSize-1] = 1
			}
			out = append(out, w...)
		case strings.HasPrefix(t, "uint"):
			n, ok := new(big.Int).SetString(fmt.Sprint(values[i]), 10)
			if !ok {
				return nil, fmt.Errorf("bad uint %v", values[i])
			}
			out = append(out, BigToWord(n)...)
		default:
			return nil, fmt.Errorf("unsupported type %s", t)
		}
	}
	return out, nil
}

// solcTrailer is a real-shaped solc metadata trailer: {ipfs: <34 bytes>, solc: 0.8.20}
const solcTrailer = "a2" +
	"6469706673" + "5822" + "1220" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff" +
	"64736f6c63" + "43000814" +
	"0033"

// code returns n bytes of JUMPDEST, which never parse as a metadata trailer
func code(n int) []byte {
	return bytes.Repeat([]byte{0x5b}, n)
}

func withTrailer(t *testing.T, c []byte) []byte {
	t.Helper()
	trailer, err := hex.DecodeString(solcTrailer)
	require.NoError(t, err)
	return append(append([]byte(nil), c...), trailer...)
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := HexToBytes(s)
	require.NoError(t, err)
	return b
}
