package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// ErrFunctionNotFound is returned when a function is missing from an ABI
var ErrFunctionNotFound = errors.New("function not found in ABI")

// Crypto implements chains.Crypto with go-ethereum's keccak and ABI codec
type Crypto struct{}

// NewCrypto creates a new Crypto
func NewCrypto() *Crypto {
	return &Crypto{}
}

// Keccak256 hashes the concatenation of data
func (c *Crypto) Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// EncodeABI encodes values as abi.encode(types...). Tuple types are written
// in their canonical form, e.g. "(address,uint256)" or "(uint8,bool)[]".
func (c *Crypto) EncodeABI(types []string, values []any) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("got %d values for %d types", len(values), len(types))
	}
	args := make(abi.Arguments, len(types))
	converted := make([]any, len(types))
	for i, t := range types {
		typ, err := parseType(t)
		if err != nil {
			return nil, err
		}
		args[i] = abi.Argument{Type: typ}
		converted[i], err = toABIValue(typ, values[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, t, err)
		}
	}
	return args.Pack(converted...)
}

// EncodeCall builds calldata for fn. Overloaded functions are addressed by
// their go-ethereum name (fn0, fn1, ...).
func (c *Crypto) EncodeCall(abiJSON []byte, fn string, args []any) ([]byte, error) {
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	method, ok := parsed.Methods[fn]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, fn)
	}
	if len(args) != len(method.Inputs) {
		return nil, fmt.Errorf("%s expects %d argument(s), got %d", fn, len(method.Inputs), len(args))
	}
	converted := make([]any, len(args))
	for i, in := range method.Inputs {
		converted[i], err = toABIValue(in.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, in.Type.String(), err)
		}
	}
	return parsed.Pack(fn, converted...)
}

// DecodeCall decodes fn's return data into plain values: addresses as
// checksummed hex, integers as decimal strings, bytes as 0x hex, arrays and
// tuples as []any.
func (c *Crypto) DecodeCall(abiJSON []byte, fn string, data []byte) ([]any, error) {
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	if _, ok := parsed.Methods[fn]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, fn)
	}
	values, err := parsed.Unpack(fn, data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", fn, err)
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = plainValue(reflect.ValueOf(v))
	}
	return out, nil
}

// parseType builds an abi.Type, expanding canonical tuple notation
func parseType(t string) (abi.Type, error) {
	t = strings.TrimSpace(t)
	if !strings.HasPrefix(t, "(") {
		return abi.NewType(t, "", nil)
	}
	components, suffix, err := splitTuple(t)
	if err != nil {
		return abi.Type{}, err
	}
	return abi.NewType("tuple"+suffix, "", components)
}

// splitTuple turns "(a,(b,c))[2]" into argument marshalings and the "[2]" suffix
func splitTuple(t string) ([]abi.ArgumentMarshaling, string, error) {
	depth, end := 0, -1
	for i, r := range t {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && end < 0 {
				end = i
			}
		}
	}
	if depth != 0 || end < 0 {
		return nil, "", fmt.Errorf("unbalanced tuple type %q", t)
	}

	var (
		parts []string
		start = 1
		level = 0
	)
	inner := t[:end]
	for i := 1; i < len(inner); i++ {
		switch inner[i] {
		case '(':
			level++
		case ')':
			level--
		case ',':
			if level == 0 {
				parts = append(parts, inner[start:i])
				start = i + 1
			}
		}
	}
	if rest := inner[start:]; strings.TrimSpace(rest) != "" {
		parts = append(parts, rest)
	}

	components := make([]abi.ArgumentMarshaling, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		m := abi.ArgumentMarshaling{Name: "f" + strconv.Itoa(i), Type: p}
		if strings.HasPrefix(p, "(") {
			sub, suffix, err := splitTuple(p)
			if err != nil {
				return nil, "", err
			}
			m.Type = "tuple" + suffix
			m.Components = sub
		}
		components[i] = m
	}
	return components, t[end+1:], nil
}

// toABIValue converts JSON-ish input (strings, numbers, bools, slices) to
// the Go type go-ethereum's packer expects for typ
func toABIValue(typ abi.Type, v any) (any, error) {
	goType := typ.GetType()
	if v != nil && reflect.TypeOf(v) == goType {
		return v, nil
	}

	switch typ.T {
	case abi.AddressTy:
		s, ok := v.(string)
		if !ok || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %v", v)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(x)
		}
		return nil, fmt.Errorf("invalid bool %v", v)

	case abi.IntTy, abi.UintTy:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		if typ.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for %s", n, typ.String())
		}
		if goType.Kind() == reflect.Ptr {
			return n, nil
		}
		out := reflect.New(goType).Elem()
		if typ.T == abi.IntTy {
			if !n.IsInt64() || out.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("%s overflows %s", n, typ.String())
			}
			out.SetInt(n.Int64())
		} else {
			if !n.IsUint64() || out.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("%s overflows %s", n, typ.String())
			}
			out.SetUint(n.Uint64())
		}
		return out.Interface(), nil

	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("invalid string %v", v)
		}
		return s, nil

	case abi.BytesTy:
		return toBytes(v)

	case abi.FixedBytesTy:
		b, err := toBytes(v)
		if err != nil {
			return nil, err
		}
		if len(b) > typ.Size {
			return nil, fmt.Errorf("%d bytes do not fit %s", len(b), typ.String())
		}
		out := reflect.New(goType).Elem()
		reflect.Copy(out, reflect.ValueOf(b))
		return out.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected a list for %s", typ.String())
		}
		var out reflect.Value
		if typ.T == abi.SliceTy {
			out = reflect.MakeSlice(goType, len(items), len(items))
		} else {
			if len(items) != typ.Size {
				return nil, fmt.Errorf("expected %d items for %s, got %d", typ.Size, typ.String(), len(items))
			}
			out = reflect.New(goType).Elem()
		}
		for i, item := range items {
			ev, err := toABIValue(*typ.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(ev))
		}
		return out.Interface(), nil

	case abi.TupleTy:
		items, err := tupleItems(typ, v)
		if err != nil {
			return nil, err
		}
		out := reflect.New(goType).Elem()
		for i, elem := range typ.TupleElems {
			ev, err := toABIValue(*elem, items[i])
			if err != nil {
				return nil, fmt.Errorf("field %d: %w", i, err)
			}
			out.Field(i).Set(reflect.ValueOf(ev))
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("unsupported type %s", typ.String())
}

// tupleItems accepts a tuple as a positional list or a map keyed by component name
func tupleItems(typ abi.Type, v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		if len(x) != len(typ.TupleElems) {
			return nil, fmt.Errorf("expected %d tuple fields, got %d", len(typ.TupleElems), len(x))
		}
		return x, nil
	case map[string]any:
		items := make([]any, len(typ.TupleRawNames))
		for i, name := range typ.TupleRawNames {
			item, ok := x[name]
			if !ok {
				return nil, fmt.Errorf("missing tuple field %s", name)
			}
			items[i] = item
		}
		return items, nil
	}
	return nil, fmt.Errorf("invalid tuple %v", v)
}

func toBig(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		return x, nil
	case int:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("non-integer value %v", x)
		}
		return decimal.NewFromFloat(x).BigInt(), nil
	case json.Number:
		return toBig(string(x))
	case string:
		s := strings.TrimSpace(x)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			if n, ok := new(big.Int).SetString(s[2:], 16); ok {
				return n, nil
			}
		}
		d, err := decimal.NewFromString(s)
		if err != nil || !d.Equal(d.Truncate(0)) {
			return nil, fmt.Errorf("invalid integer %q", x)
		}
		return d.BigInt(), nil
	}
	return nil, fmt.Errorf("invalid integer %v", v)
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(x, "0x"), "0X"))
		if err != nil {
			return nil, fmt.Errorf("invalid hex %q: %w", x, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("invalid bytes %v", v)
}

// plainValue flattens decoded ABI values into comparison-friendly forms
func plainValue(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	switch x := v.Interface().(type) {
	case common.Address:
		return x.Hex()
	case *big.Int:
		return x.String()
	case []byte:
		return "0x" + hex.EncodeToString(x)
	case bool, string:
		return x
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			for i := range b {
				b[i] = byte(v.Index(i).Uint())
			}
			return "0x" + hex.EncodeToString(b)
		}
		fallthrough
	case reflect.Slice:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = plainValue(v.Index(i))
		}
		return out
	case reflect.Struct:
		out := make([]any, v.NumField())
		for i := range out {
			out[i] = plainValue(v.Field(i))
		}
		return out
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return plainValue(v.Elem())
	}
	return v.Interface()
}
