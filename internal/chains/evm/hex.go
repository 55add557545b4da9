// Package evm holds the pure comparison core for EVM contracts: bytecode,
// immutables, linked libraries, ABI selectors and value comparison.
// Nothing in this package touches the filesystem or the network.
package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// WordSize is the EVM word / storage slot size in bytes
const WordSize = 32

// HexToBytes decodes a hex string with an optional 0x prefix
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex: %w", err)
	}
	return b, nil
}

// NormalizeHex lower-cases a hex string and strips its 0x prefix
func NormalizeHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "0x")
}

// TypeByteWidth returns the number of bytes a Solidity value type occupies.
// Unknown and compound types occupy a full slot.
func TypeByteWidth(typeName string) int {
	switch {
	case typeName == "address":
		return 20
	case typeName == "bool":
		return 1
	case strings.HasPrefix(typeName, "uint"):
		return intWidth(strings.TrimPrefix(typeName, "uint"))
	case strings.HasPrefix(typeName, "int"):
		return intWidth(strings.TrimPrefix(typeName, "int"))
	case strings.HasPrefix(typeName, "bytes"):
		n, err := strconv.Atoi(strings.TrimPrefix(typeName, "bytes"))
		if err != nil || n < 1 || n > 32 {
			return WordSize
		}
		return n
	}
	return WordSize
}

func intWidth(bits string) int {
	if bits == "" {
		return WordSize
	}
	n, err := strconv.Atoi(bits)
	if err != nil || n < 8 || n > 256 || n%8 != 0 {
		return WordSize
	}
	return n / 8
}

// IsValueType reports whether typeName is a Solidity elementary value type
// whose width TypeByteWidth knows exactly
func IsValueType(typeName string) bool {
	switch {
	case typeName == "address", typeName == "bool":
		return true
	case strings.HasPrefix(typeName, "uint"):
		return validBits(strings.TrimPrefix(typeName, "uint"))
	case strings.HasPrefix(typeName, "int"):
		return validBits(strings.TrimPrefix(typeName, "int"))
	case strings.HasPrefix(typeName, "bytes"):
		n, err := strconv.Atoi(strings.TrimPrefix(typeName, "bytes"))
		return err == nil && n >= 1 && n <= 32
	}
	return false
}

func validBits(bits string) bool {
	if bits == "" {
		return true
	}
	n, err := strconv.Atoi(bits)
	return err == nil && n >= 8 && n <= 256 && n%8 == 0
}

// Pad32 left-pads b with zeros to 32 bytes. Longer input keeps its last 32 bytes.
func Pad32(b []byte) []byte {
	out := make([]byte, WordSize)
	if len(b) >= WordSize {
		copy(out, b[len(b)-WordSize:])
		return out
	}
	copy(out[WordSize-len(b):], b)
	return out
}

// BigToWord encodes a non-negative integer as a 32-byte big-endian word
func BigToWord(n *big.Int) []byte {
	return Pad32(n.Bytes())
}

// WordToBig decodes a big-endian word as an unsigned integer
func WordToBig(w []byte) *big.Int {
	return new(big.Int).SetBytes(w)
}

// Hex0x encodes b as lower-case hex with a 0x prefix
func Hex0x(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
