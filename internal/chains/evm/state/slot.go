package state

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

var (
	addressKeyPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	numericKeyPattern = regexp.MustCompile(`^-?\d+$|^0x[a-fA-F0-9]+$`)
	bytes32KeyPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	hexKeyPattern     = regexp.MustCompile(`^0x([a-fA-F0-9]{2})*$`)
)

// ComputedSlot is where a storage path lands
type ComputedSlot struct {
	Slot       common.Hash `json:"slot"`
	Type       string      `json:"type"`
	ByteOffset int         `json:"byteOffset"`
}

// BaseSlot returns the first slot of a struct: its explicit baseSlot or the
// ERC-7201 slot of its namespace
func (s *Schema) BaseSlot(h evm.Hasher, structName string) (common.Hash, error) {
	def, ok := s.Structs[structName]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownStruct, structName)
	}
	switch {
	case def.BaseSlot != "":
		n, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(def.BaseSlot), "0x"), 16)
		if !ok || n.BitLen() > 256 {
			return common.Hash{}, fmt.Errorf("%w: struct %s has invalid baseSlot %s", ErrInvalidSchema, structName, def.BaseSlot)
		}
		return common.BigToHash(n), nil
	case def.Namespace != "":
		return Erc7201BaseSlot(h, def.Namespace), nil
	case s.Namespaces[structName] != "":
		return Erc7201BaseSlot(h, s.Namespaces[structName]), nil
	}
	return common.Hash{}, fmt.Errorf("%w: struct %s has no baseSlot or namespace", ErrInvalidSchema, structName)
}

// ComputeSlot walks a path through the schema. Fields add their slot offset;
// dynamic arrays hash their slot and index from there; fixed arrays index in
// place; mapping keys hash as keccak256(encode(key) ++ slot).
func ComputeSlot(c Crypto, schema *Schema, p *Path) (*ComputedSlot, error) {
	slot, err := schema.BaseSlot(c, p.Struct)
	if err != nil {
		return nil, err
	}

	cur := schema.Structs[p.Struct]
	typ := p.Struct
	offset := 0

	for _, seg := range p.Segments {
		if seg.Kind == SegmentIndex && isMapping(typ) {
			seg = Segment{Kind: SegmentMapKey, Key: strconv.FormatUint(seg.Index, 10)}
		}
		switch seg.Kind {
		case SegmentField:
			if cur == nil {
				return nil, fmt.Errorf("cannot access field %s on non-struct type %s", seg.Name, typ)
			}
			f, ok := cur.Field(seg.Name)
			if !ok {
				return nil, fmt.Errorf("unknown field: %s in struct %s", seg.Name, cur.Name)
			}
			slot = addSlot(slot, new(big.Int).SetUint64(f.Slot))
			typ, offset = f.Type, f.ByteOffset

		case SegmentLength:
			if _, _, dynamic, ok := splitArray(typ); !(ok && dynamic) && typ != "string" && typ != "bytes" {
				return nil, fmt.Errorf("length is only stored for dynamic arrays, not %s", typ)
			}
			typ, offset = "uint256", 0

		case SegmentIndex:
			elem, length, dynamic, ok := splitArray(typ)
			if !ok {
				return nil, fmt.Errorf("cannot index non-array type %s", typ)
			}
			if !dynamic && seg.Index >= length {
				return nil, fmt.Errorf("index %d out of bounds for %s", seg.Index, typ)
			}
			if dynamic {
				slot = common.BytesToHash(c.Keccak256(slot.Bytes()))
			}
			idx := new(big.Int).SetUint64(seg.Index)
			offset = 0
			if evm.IsValueType(elem) && evm.TypeByteWidth(elem) < evm.WordSize {
				width := evm.TypeByteWidth(elem)
				perSlot := uint64(evm.WordSize / width)
				slot = addSlot(slot, new(big.Int).SetUint64(seg.Index/perSlot))
				offset = int(seg.Index%perSlot) * width
			} else {
				elemSlots, err := schema.typeSlots(elem)
				if err != nil {
					return nil, err
				}
				slot = addSlot(slot, idx.Mul(idx, new(big.Int).SetUint64(elemSlots)))
			}
			typ = elem

		case SegmentMapKey:
			keyType, valueType, ok := splitMapping(typ)
			if !ok {
				return nil, fmt.Errorf("cannot use key %s on non-mapping type %s", seg.Key, typ)
			}
			key, err := encodeKey(c, seg.Key, keyType)
			if err != nil {
				return nil, err
			}
			slot = common.BytesToHash(c.Keccak256(key, slot.Bytes()))
			typ, offset = valueType, 0
		}

		cur = schema.Structs[typ]
	}

	return &ComputedSlot{Slot: slot, Type: typ, ByteOffset: offset}, nil
}

// encodeKey produces the bytes hashed in front of the mapping slot: the
// 32-byte ABI encoding for value types, the raw bytes for string and bytes
func encodeKey(c evm.ABIEncoder, key, keyType string) ([]byte, error) {
	switch {
	case keyType == "address":
		if !addressKeyPattern.MatchString(key) {
			return nil, fmt.Errorf("invalid address key: %s. Expected 0x followed by 40 hex characters", key)
		}
		return c.EncodeABI([]string{keyType}, []any{key})

	case strings.HasPrefix(keyType, "uint"), strings.HasPrefix(keyType, "int"):
		if !numericKeyPattern.MatchString(key) {
			return nil, fmt.Errorf("invalid numeric key: %s. Expected decimal or hex number", key)
		}
		n, ok := parseBig(key)
		if !ok {
			return nil, fmt.Errorf("invalid numeric key: %s", key)
		}
		return c.EncodeABI([]string{keyType}, []any{n})

	case keyType == "bool":
		switch strings.ToLower(key) {
		case "true":
			return c.EncodeABI([]string{keyType}, []any{true})
		case "false":
			return c.EncodeABI([]string{keyType}, []any{false})
		}
		return nil, fmt.Errorf("invalid bool key: %s", key)

	case keyType == "bytes32":
		if !bytes32KeyPattern.MatchString(key) {
			return nil, fmt.Errorf("invalid bytes32 key: %s. Expected 0x followed by 64 hex characters", key)
		}
		return c.EncodeABI([]string{keyType}, []any{key})

	case strings.HasPrefix(keyType, "bytes") && keyType != "bytes":
		width := evm.TypeByteWidth(keyType)
		if !hexKeyPattern.MatchString(key) || len(key)-2 != width*2 {
			return nil, fmt.Errorf("invalid %s key: %s. Expected 0x followed by %d hex characters", keyType, key, width*2)
		}
		return c.EncodeABI([]string{keyType}, []any{key})

	case keyType == "string":
		return []byte(key), nil

	case keyType == "bytes":
		if !hexKeyPattern.MatchString(key) {
			return nil, fmt.Errorf("invalid bytes key: %s. Expected 0x-prefixed hex", key)
		}
		return evm.HexToBytes(key)
	}
	return nil, fmt.Errorf("unsupported mapping key type %s", keyType)
}

func parseBig(s string) (*big.Int, bool) {
	if strings.HasPrefix(s, "0x") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}
