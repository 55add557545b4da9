// Package schemagen derives storage schemas from Solidity source. Struct
// members are laid out with Solidity's packing rules, enums shrink to the
// smallest uint that holds them and interface types become addresses.
// Structs annotated with @custom:storage-location erc7201:<id> get their
// namespace base slot.
package schemagen

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/state"
)

// DefaultComment is the $comment of generated schemas
const DefaultComment = "Auto-generated storage schema"

// Field is a struct member with its explicit position. ByteOffset is nil
// for members that own their slot.
type Field struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Slot       uint64 `json:"slot"`
	ByteOffset *int   `json:"byteOffset,omitempty"`
}

// Struct is one storage struct
type Struct struct {
	Namespace string  `json:"namespace,omitempty"`
	BaseSlot  string  `json:"baseSlot,omitempty"`
	Fields    []Field `json:"fields"`
}

// Schema is the generated document, readable by state.ParseSchema
type Schema struct {
	Comment string             `json:"$comment,omitempty"`
	Structs map[string]*Struct `json:"structs"`
}

// JSON renders the schema indented
func (s *Schema) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Parse round-trips the schema through the storage engine's parser
func (s *Schema) Parse() (*state.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return state.ParseSchema(raw)
}

// Source is one Solidity file
type Source struct {
	Name string
	Code string
}

// Options tunes generation
type Options struct {
	Comment string
	// SkipConstantCheck stops comparing computed base slots with *StorageLocation constants
	SkipConstantCheck bool
	// OmitZeroOffset leaves byteOffset out for the first member of a packed slot
	OmitZeroOffset bool
}

// Result is a generated schema and any warnings raised while reading
type Result struct {
	Schema   *Schema
	Warnings []string
}

var (
	structNamePattern = regexp.MustCompile(`struct[ \t]+(\w+)[ \t]*\{`)
	structPattern     = regexp.MustCompile(`struct[ \t]+(\w+)[ \t]*\{([^}]+)\}`)
	enumPattern       = regexp.MustCompile(`enum[ \t]+(\w+)[ \t]*\{([^}]+)\}`)
	namespacePattern  = regexp.MustCompile(`@custom:storage-location\s+erc7201:([^\s*]+)`)
	constantPattern   = regexp.MustCompile(`bytes32\s+(?:private\s+|internal\s+)?constant\s+(\w+)StorageLocation\s*=\s*(0x[a-fA-F0-9]+)`)
	fieldPattern      = regexp.MustCompile(`^\s*([A-Z]?[a-zA-Z0-9_]+(?:\[\])?)\s+(\w+)\s*;`)
	mappingStart      = regexp.MustCompile(`\bmapping\s*\(`)
	mappingName       = regexp.MustCompile(`^(\w+)\s*;`)
	mappingParts      = regexp.MustCompile(`^mapping[ \t]*\([ \t]*([^=>\s]+)[ \t]*=>[ \t]*(.+)\)$`)
	interfaceName     = regexp.MustCompile(`^I[A-Z]`)
)

// Generator reads struct and enum declarations across every source before
// laying out any struct, so types may be declared in another file
type Generator struct {
	hasher  evm.Hasher
	opts    Options
	structs map[string]bool
	enums   map[string]int
}

// New creates a generator
func New(hasher evm.Hasher, opts Options) *Generator {
	return &Generator{hasher: hasher, opts: opts}
}

// Generate builds one schema from all sources. Structs declared in more
// than one file are merged, later files winning.
func (g *Generator) Generate(sources []Source) *Result {
	g.structs = make(map[string]bool)
	g.enums = make(map[string]int)
	for _, src := range sources {
		g.learnTypes(src.Code)
	}

	res := &Result{}
	schemas := make([]*Schema, 0, len(sources))
	for _, src := range sources {
		sc, warnings := g.parse(src)
		schemas = append(schemas, sc)
		res.Warnings = append(res.Warnings, warnings...)
	}

	res.Schema = Merge(schemas...)
	if g.opts.Comment != "" {
		res.Schema.Comment = g.opts.Comment
	}
	return res
}

func (g *Generator) learnTypes(code string) {
	for _, m := range structNamePattern.FindAllStringSubmatch(code, -1) {
		g.structs[m[1]] = true
	}
	for _, m := range enumPattern.FindAllStringSubmatch(code, -1) {
		count := 0
		for _, v := range strings.Split(m[2], ",") {
			if strings.TrimSpace(v) != "" {
				count++
			}
		}
		g.enums[m[1]] = enumSize(count)
	}
}

// enumSize is the byte width of the smallest uint holding count members
func enumSize(count int) int {
	switch {
	case count <= 1<<8:
		return 1
	case count <= 1<<16:
		return 2
	case count <= 1<<24:
		return 3
	case uint64(count) <= 1<<32:
		return 4
	}
	return 32
}

func (g *Generator) parse(src Source) (*Schema, []string) {
	comment := g.opts.Comment
	if comment == "" {
		comment = DefaultComment
	}
	sc := &Schema{Comment: comment, Structs: make(map[string]*Struct)}
	var warnings []string

	constants := make(map[string]string)
	for _, m := range constantPattern.FindAllStringSubmatch(src.Code, -1) {
		constants[m[1]] = strings.ToLower(m[2])
	}

	for _, idx := range structPattern.FindAllStringSubmatchIndex(src.Code, -1) {
		name := src.Code[idx[2]:idx[3]]
		body := src.Code[idx[4]:idx[5]]

		def := &Struct{Fields: g.layout(body)}
		explicit, hasExplicit := constants[name]
		if !hasExplicit {
			explicit, hasExplicit = constants[strings.TrimSuffix(name, "Storage")]
		}

		if m := namespacePattern.FindStringSubmatch(precedingComments(src.Code, idx[0])); m != nil {
			def.Namespace = m[1]
			def.BaseSlot = state.Erc7201BaseSlot(g.hasher, m[1]).Hex()
			if hasExplicit && !g.opts.SkipConstantCheck && explicit != def.BaseSlot {
				where := ""
				if src.Name != "" {
					where = " in " + src.Name
				}
				warnings = append(warnings, fmt.Sprintf(
					"computed baseSlot for %s (%s) does not match explicit constant%s (%s), using the constant",
					name, def.BaseSlot, where, explicit))
				def.BaseSlot = explicit
			}
		} else if hasExplicit {
			def.BaseSlot = explicit
		}

		sc.Structs[name] = def
	}
	return sc, warnings
}

// layout assigns slots and offsets to the members of a struct body
func (g *Generator) layout(body string) []Field {
	type placed struct {
		Field
		offset int
		size   int
		packed bool
	}
	var members []placed
	slot, offset := uint64(0), 0

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") {
			continue
		}

		var name, typ string
		if typeStr, n, ok := extractMapping(line); ok {
			name, typ = n, g.normalizeType(typeStr)
		} else if m := fieldPattern.FindStringSubmatch(line); m != nil {
			name, typ = m[2], g.normalizeType(m[1])
		} else {
			continue
		}

		if g.ownsSlots(typ) {
			if offset > 0 {
				slot++
				offset = 0
			}
			members = append(members, placed{Field: Field{Name: name, Type: typ, Slot: slot}, size: evm.WordSize})
			slot++
			continue
		}

		size := typeSize(typ)
		if offset+size > evm.WordSize {
			slot++
			offset = 0
		}
		members = append(members, placed{Field: Field{Name: name, Type: typ, Slot: slot}, offset: offset, size: size, packed: true})
		offset += size
		if offset >= evm.WordSize {
			slot++
			offset = 0
		}
	}

	perSlot := make(map[uint64]int)
	for _, m := range members {
		if m.packed {
			perSlot[m.Slot]++
		}
	}

	fields := make([]Field, 0, len(members))
	for _, m := range members {
		f := m.Field
		shared := m.packed && perSlot[m.Slot] > 1 && m.size < evm.WordSize
		if m.offset > 0 || (shared && !g.opts.OmitZeroOffset) {
			off := m.offset
			f.ByteOffset = &off
		}
		fields = append(fields, f)
	}
	return fields
}

// ownsSlots reports whether a member starts a fresh slot and fills it
func (g *Generator) ownsSlots(typ string) bool {
	return strings.HasSuffix(typ, "[]") || strings.HasPrefix(typ, "mapping") || g.structs[typ]
}

func (g *Generator) normalizeType(t string) string {
	t = strings.TrimSpace(t)

	if strings.HasSuffix(t, "[]") {
		return g.normalizeType(strings.TrimSuffix(t, "[]")) + "[]"
	}
	if strings.HasPrefix(t, "mapping") {
		if m := mappingParts.FindStringSubmatch(t); m != nil {
			return fmt.Sprintf("mapping(%s => %s)", g.normalizeType(m[1]), g.normalizeType(m[2]))
		}
	}
	if g.structs[t] {
		return t
	}
	if size, ok := g.enums[t]; ok {
		return "uint" + strconv.Itoa(size*8)
	}
	if interfaceName.MatchString(t) {
		return "address"
	}
	return t
}

// typeSize is the packed byte width of a value type. Anything else takes a full slot.
func typeSize(t string) int {
	switch {
	case t == "bool":
		return 1
	case t == "address":
		return 20
	case t == "uint", t == "int":
		return evm.WordSize
	case strings.HasPrefix(t, "uint"), strings.HasPrefix(t, "int"):
		if !evm.IsValueType(t) {
			return evm.WordSize
		}
		bits, _ := strconv.Atoi(strings.TrimLeft(t, "uint"))
		return bits / 8
	case strings.HasPrefix(t, "bytes"):
		n, err := strconv.Atoi(strings.TrimPrefix(t, "bytes"))
		if err != nil || n < 1 || n > evm.WordSize {
			return evm.WordSize
		}
		return n
	}
	return evm.WordSize
}

// extractMapping finds a mapping declaration with balanced parentheses
func extractMapping(line string) (typeStr, name string, ok bool) {
	loc := mappingStart.FindStringIndex(line)
	if loc == nil {
		return "", "", false
	}
	depth := 0
	end := -1
	for i := loc[0]; i < len(line); i++ {
		switch line[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return "", "", false
	}
	m := mappingName.FindStringSubmatch(strings.TrimSpace(line[end:]))
	if m == nil {
		return "", "", false
	}
	return line[loc[0]:end], m[1], true
}

// precedingComments returns the /// lines or the /** */ block right above pos
func precedingComments(code string, pos int) string {
	lines := strings.Split(code[:pos], "\n")
	var out []string
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "///") {
			out = append([]string{line}, out...)
			continue
		}
		if strings.HasSuffix(line, "*/") {
			for j := i; j >= 0; j-- {
				out = append([]string{lines[j]}, out...)
				if strings.Contains(lines[j], "/**") {
					break
				}
			}
		}
		break
	}
	return strings.Join(out, "\n")
}

// Merge combines schemas. Later structs override namespace and base slot
// and replace same-named fields; new fields are appended.
func Merge(schemas ...*Schema) *Schema {
	merged := &Schema{Comment: DefaultComment, Structs: make(map[string]*Struct)}
	for _, sc := range schemas {
		if sc == nil {
			continue
		}
		if sc.Comment != "" && sc.Comment != DefaultComment {
			merged.Comment = sc.Comment
		}
		for name, def := range sc.Structs {
			existing, ok := merged.Structs[name]
			if !ok {
				cp := *def
				cp.Fields = append([]Field(nil), def.Fields...)
				merged.Structs[name] = &cp
				continue
			}
			if def.Namespace != "" {
				existing.Namespace = def.Namespace
			}
			if def.BaseSlot != "" {
				existing.BaseSlot = def.BaseSlot
			}
			for _, f := range def.Fields {
				replaced := false
				for i := range existing.Fields {
					if existing.Fields[i].Name == f.Name {
						existing.Fields[i] = f
						replaced = true
						break
					}
				}
				if !replaced {
					existing.Fields = append(existing.Fields, f)
				}
			}
		}
	}
	return merged
}
