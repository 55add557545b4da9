package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

var (
	// ErrInvalidSchema is returned for malformed schema documents
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrUnknownStruct is returned when a path or field names an undeclared struct
	ErrUnknownStruct = errors.New("unknown struct")
	// ErrUnknownType is returned when a field type cannot be resolved
	ErrUnknownType = errors.New("unresolvable type")
)

// Field is one struct member and its position relative to the struct's first slot
type Field struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Slot       uint64 `json:"slot"`
	ByteOffset int    `json:"byteOffset"`
}

// StructDef is a storage struct in declaration order
type StructDef struct {
	Name      string  `json:"-"`
	Namespace string  `json:"namespace,omitempty"`
	BaseSlot  string  `json:"baseSlot,omitempty"`
	Fields    []Field `json:"fields"`
}

// Field returns the member called name
func (s *StructDef) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Schema describes the storage structs of a contract
type Schema struct {
	Structs map[string]*StructDef `json:"structs"`
	// Namespaces maps a struct name to its ERC-7201 id when the struct itself carries none
	Namespaces map[string]string `json:"namespaces,omitempty"`
}

type rawField struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Slot       *uint64 `json:"slot"`
	ByteOffset *int    `json:"byteOffset"`
}

type rawStruct struct {
	Namespace string          `json:"namespace"`
	BaseSlot  string          `json:"baseSlot"`
	Fields    json.RawMessage `json:"fields"`
}

type rawSchema struct {
	Structs    map[string]rawStruct `json:"structs"`
	Namespaces map[string]string    `json:"namespaces"`
}

// ParseSchema decodes a schema document. Fields are either an ordered list
// of {name, type} packed by Solidity's rules, or carry explicit slot and
// byteOffset (as a list or as a name-keyed object).
func ParseSchema(raw []byte) (*Schema, error) {
	var doc rawSchema
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if doc.Structs == nil {
		return nil, fmt.Errorf("%w: missing 'structs' object", ErrInvalidSchema)
	}

	s := &Schema{Structs: make(map[string]*StructDef, len(doc.Structs)), Namespaces: doc.Namespaces}
	var toPack []string
	explicitLayout := make(map[string]bool)
	for name, rs := range doc.Structs {
		fields, explicit, err := parseFields(name, rs.Fields)
		if err != nil {
			return nil, err
		}
		s.Structs[name] = &StructDef{Name: name, Namespace: rs.Namespace, BaseSlot: rs.BaseSlot, Fields: fields}
		if explicit {
			explicitLayout[name] = true
		} else {
			toPack = append(toPack, name)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	sort.Strings(toPack)
	p := newPacker(s, explicitLayout)
	for _, name := range toPack {
		if err := p.pack(s.Structs[name]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func parseFields(structName string, raw json.RawMessage) ([]Field, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false, fmt.Errorf("%w: struct '%s' missing 'fields'", ErrInvalidSchema, structName)
	}

	if raw[0] == '{' {
		var byName map[string]rawField
		if err := json.Unmarshal(raw, &byName); err != nil {
			return nil, false, fmt.Errorf("%w: struct '%s': %v", ErrInvalidSchema, structName, err)
		}
		fields := make([]Field, 0, len(byName))
		for name, rf := range byName {
			if rf.Slot == nil {
				return nil, false, fmt.Errorf("%w: field '%s.%s' missing numeric 'slot'", ErrInvalidSchema, structName, name)
			}
			rf.Name = name
			f, err := explicitField(structName, rf)
			if err != nil {
				return nil, false, err
			}
			fields = append(fields, f)
		}
		sort.Slice(fields, func(i, j int) bool {
			if fields[i].Slot != fields[j].Slot {
				return fields[i].Slot < fields[j].Slot
			}
			return fields[i].ByteOffset < fields[j].ByteOffset
		})
		return fields, true, nil
	}

	var list []rawField
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false, fmt.Errorf("%w: struct '%s': %v", ErrInvalidSchema, structName, err)
	}
	withSlot := 0
	for _, rf := range list {
		if rf.Slot != nil {
			withSlot++
		}
	}
	if withSlot != 0 && withSlot != len(list) {
		return nil, false, fmt.Errorf("%w: struct '%s' mixes explicit and packed fields", ErrInvalidSchema, structName)
	}

	fields := make([]Field, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, rf := range list {
		if rf.Name == "" {
			return nil, false, fmt.Errorf("%w: struct '%s' has a field without a name", ErrInvalidSchema, structName)
		}
		if seen[rf.Name] {
			return nil, false, fmt.Errorf("%w: duplicate field '%s.%s'", ErrInvalidSchema, structName, rf.Name)
		}
		seen[rf.Name] = true
		if withSlot > 0 {
			f, err := explicitField(structName, rf)
			if err != nil {
				return nil, false, err
			}
			fields = append(fields, f)
			continue
		}
		if rf.Type == "" {
			return nil, false, fmt.Errorf("%w: field '%s.%s' missing string 'type'", ErrInvalidSchema, structName, rf.Name)
		}
		fields = append(fields, Field{Name: rf.Name, Type: normalizeType(rf.Type)})
	}
	return fields, withSlot > 0, nil
}

func explicitField(structName string, rf rawField) (Field, error) {
	if rf.Type == "" {
		return Field{}, fmt.Errorf("%w: field '%s.%s' missing string 'type'", ErrInvalidSchema, structName, rf.Name)
	}
	f := Field{Name: rf.Name, Type: normalizeType(rf.Type), Slot: *rf.Slot}
	if rf.ByteOffset != nil {
		f.ByteOffset = *rf.ByteOffset
	}
	if f.ByteOffset < 0 || f.ByteOffset >= evm.WordSize {
		return Field{}, fmt.Errorf("%w: field '%s.%s' byteOffset %d outside a slot", ErrInvalidSchema, structName, rf.Name, f.ByteOffset)
	}
	return f, nil
}

// normalizeType canonicalizes whitespace and aliases in a type expression
func normalizeType(t string) string {
	t = strings.TrimSpace(t)
	if strings.HasPrefix(t, "mapping") {
		t = strings.Join(strings.Fields(t), " ")
		t = strings.ReplaceAll(t, "mapping (", "mapping(")
		t = strings.ReplaceAll(t, " =>", "=>")
		t = strings.ReplaceAll(t, "=> ", "=>")
		t = strings.ReplaceAll(t, "=>", " => ")
		return t
	}
	switch t {
	case "uint":
		return "uint256"
	case "int":
		return "int256"
	case "byte":
		return "bytes1"
	}
	return t
}

// Validate checks that every field type resolves
func (s *Schema) Validate() error {
	names := make([]string, 0, len(s.Structs))
	for name := range s.Structs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, f := range s.Structs[name].Fields {
			if !s.resolvable(f.Type) {
				return fmt.Errorf("%w: %s in field '%s.%s'", ErrUnknownType, f.Type, name, f.Name)
			}
		}
	}
	return nil
}

func (s *Schema) resolvable(t string) bool {
	switch {
	case evm.IsValueType(t), t == "string", t == "bytes":
		return true
	case isMapping(t):
		key, value, ok := splitMapping(t)
		return ok && (evm.IsValueType(key) || key == "string" || key == "bytes") && s.resolvable(value)
	}
	if elem, _, _, ok := splitArray(t); ok {
		return s.resolvable(elem)
	}
	_, ok := s.Structs[t]
	return ok
}

// isStruct reports whether t names a declared struct
func (s *Schema) isStruct(t string) bool {
	_, ok := s.Structs[t]
	return ok
}

func isMapping(t string) bool {
	return strings.HasPrefix(t, "mapping(")
}

// splitMapping splits "mapping(K => V)" at its first arrow so nested value
// mappings stay intact
func splitMapping(t string) (key, value string, ok bool) {
	if !isMapping(t) || !strings.HasSuffix(t, ")") {
		return "", "", false
	}
	inner := t[len("mapping(") : len(t)-1]
	i := strings.Index(inner, "=>")
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(inner[:i])
	value = strings.TrimSpace(inner[i+2:])
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}

// splitArray splits "T[]" or "T[k]" on its outermost dimension
func splitArray(t string) (elem string, length uint64, dynamic, ok bool) {
	if !strings.HasSuffix(t, "]") || isMapping(t) {
		return "", 0, false, false
	}
	i := strings.LastIndex(t, "[")
	if i <= 0 {
		return "", 0, false, false
	}
	dim := t[i+1 : len(t)-1]
	if dim == "" {
		return t[:i], 0, true, true
	}
	n, err := strconv.ParseUint(dim, 10, 64)
	if err != nil || n == 0 {
		return "", 0, false, false
	}
	return t[:i], n, false, true
}
