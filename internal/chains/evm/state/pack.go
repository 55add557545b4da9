package state

import (
	"fmt"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

// packer assigns slots to struct fields following Solidity's layout rules
type packer struct {
	schema   *Schema
	explicit map[string]bool
	slots    map[string]uint64
	visiting map[string]bool
}

func newPacker(s *Schema, explicit map[string]bool) *packer {
	return &packer{
		schema:   s,
		explicit: explicit,
		slots:    make(map[string]uint64),
		visiting: make(map[string]bool),
	}
}

// typeSize returns the bytes a type takes inside a slot, the slots it spans,
// and whether it must start on a fresh slot with the next item after it
func (p *packer) typeSize(t string) (width int, slots uint64, fresh bool, err error) {
	switch {
	case evm.IsValueType(t):
		return evm.TypeByteWidth(t), 1, false, nil
	case t == "string", t == "bytes", isMapping(t):
		return evm.WordSize, 1, true, nil
	}
	if elem, length, dynamic, ok := splitArray(t); ok {
		if dynamic {
			return evm.WordSize, 1, true, nil
		}
		if evm.IsValueType(elem) {
			perSlot := uint64(evm.WordSize / evm.TypeByteWidth(elem))
			return evm.WordSize, (length + perSlot - 1) / perSlot, true, nil
		}
		_, elemSlots, _, err := p.typeSize(elem)
		if err != nil {
			return 0, 0, false, err
		}
		return evm.WordSize, elemSlots * length, true, nil
	}
	if p.schema.isStruct(t) {
		n, err := p.structSlots(t)
		return evm.WordSize, n, true, err
	}
	return 0, 0, false, fmt.Errorf("%w: %s", ErrUnknownType, t)
}

// structSlots returns how many slots a struct occupies, packing it first if needed
func (p *packer) structSlots(name string) (uint64, error) {
	if n, ok := p.slots[name]; ok {
		return n, nil
	}
	if p.visiting[name] {
		return 0, fmt.Errorf("%w: struct %s contains itself", ErrInvalidSchema, name)
	}
	p.visiting[name] = true
	defer delete(p.visiting, name)

	def := p.schema.Structs[name]
	var (
		n   uint64
		err error
	)
	if p.explicit[name] {
		n, err = p.explicitSlots(def)
	} else {
		n, err = p.assign(def)
	}
	if err != nil {
		return 0, err
	}
	p.slots[name] = n
	return n, nil
}

func (p *packer) explicitSlots(def *StructDef) (uint64, error) {
	var end uint64
	for _, f := range def.Fields {
		_, slots, _, err := p.typeSize(f.Type)
		if err != nil {
			return 0, err
		}
		if f.Slot+slots > end {
			end = f.Slot + slots
		}
	}
	return end, nil
}

// pack lays out a struct declared without explicit positions
func (p *packer) pack(def *StructDef) error {
	_, err := p.structSlots(def.Name)
	return err
}

// assign packs fields left to right: a value that does not fit in the rest
// of the slot moves to the next one; structs, arrays and mappings occupy
// whole slots of their own.
func (p *packer) assign(def *StructDef) (uint64, error) {
	var (
		slot   uint64
		offset int
	)
	for i := range def.Fields {
		f := &def.Fields[i]
		width, slots, fresh, err := p.typeSize(f.Type)
		if err != nil {
			return 0, fmt.Errorf("field '%s.%s': %w", def.Name, f.Name, err)
		}
		if fresh {
			if offset > 0 {
				slot++
				offset = 0
			}
			f.Slot, f.ByteOffset = slot, 0
			slot += slots
			continue
		}
		if offset+width > evm.WordSize {
			slot++
			offset = 0
		}
		f.Slot, f.ByteOffset = slot, offset
		offset += width
	}
	if offset > 0 {
		slot++
	}
	return slot, nil
}

// typeSlots returns the number of slots t occupies in a laid-out schema
func (s *Schema) typeSlots(t string) (uint64, error) {
	explicit := make(map[string]bool, len(s.Structs))
	for name := range s.Structs {
		explicit[name] = true
	}
	_, slots, _, err := newPacker(s, explicit).typeSize(t)
	return slots, err
}
