package evm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ArtifactFormat identifies the toolchain that produced an artifact
type ArtifactFormat string

const (
	FormatHardhat ArtifactFormat = "hardhat"
	FormatFoundry ArtifactFormat = "foundry"
)

// ErrUnknownArtifactFormat is returned when an artifact matches neither layout
var ErrUnknownArtifactFormat = errors.New("unknown artifact format")

// ABIParam is a function/event parameter
type ABIParam struct {
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	InternalType string     `json:"internalType,omitempty"`
	Components   []ABIParam `json:"components,omitempty"`
	Indexed      bool       `json:"indexed,omitempty"`
}

// ABIElement is one entry of a contract ABI
type ABIElement struct {
	Type            string     `json:"type"`
	Name            string     `json:"name,omitempty"`
	Inputs          []ABIParam `json:"inputs,omitempty"`
	Outputs         []ABIParam `json:"outputs,omitempty"`
	StateMutability string     `json:"stateMutability,omitempty"`
	Anonymous       bool       `json:"anonymous,omitempty"`
}

// Offset is a byte range inside bytecode
type Offset struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// ImmutableReference maps an immutable variable to a byte range of the
// deployed bytecode. A variable read in several places has several entries.
type ImmutableReference struct {
	Name   string `json:"name"`
	ASTID  string `json:"astId"`
	Start  int    `json:"start"`
	Length int    `json:"length"`
}

// LinkReferences maps a fully-qualified library name ("path/File.sol:Lib")
// to the offsets of its placeholders
type LinkReferences map[string][]Offset

// Artifact is a build artifact normalized from either Hardhat or Foundry output.
// Bytecode fields are lower-case hex without prefix and may still contain
// unlinked library placeholders.
type Artifact struct {
	Format                 ArtifactFormat       `json:"format"`
	ContractName           string               `json:"contractName,omitempty"`
	ABI                    []ABIElement         `json:"abi"`
	ABIJSON                json.RawMessage      `json:"-"`
	Bytecode               string               `json:"bytecode"`
	DeployedBytecode       string               `json:"deployedBytecode"`
	ImmutableReferences    []ImmutableReference `json:"immutableReferences,omitempty"`
	LinkReferences         LinkReferences       `json:"linkReferences,omitempty"`
	DeployedLinkReferences LinkReferences       `json:"deployedLinkReferences,omitempty"`
	MethodIdentifiers      map[string]string    `json:"methodIdentifiers,omitempty"` // selector -> signature
	CompilerVersion        string               `json:"compilerVersion,omitempty"`
}

// DeployedCode decodes the deployed bytecode. Unlinked placeholders decode
// as zero bytes so their ranges can be masked by the comparator.
func (a *Artifact) DeployedCode() ([]byte, error) {
	return decodeWithPlaceholders(a.DeployedBytecode)
}

// Constructor returns the constructor ABI entry, if any
func (a *Artifact) Constructor() (ABIElement, bool) {
	for _, el := range a.ABI {
		if el.Type == "constructor" {
			return el, true
		}
	}
	return ABIElement{}, false
}

// Function returns the first function entry named name
func (a *Artifact) Function(name string) (ABIElement, bool) {
	return FindFunction(a.ABI, name)
}

// ImmutableNames lists the distinct immutable names in declaration order of first offset
func (a *Artifact) ImmutableNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ref := range a.ImmutableReferences {
		if !seen[ref.Name] {
			seen[ref.Name] = true
			names = append(names, ref.Name)
		}
	}
	return names
}

// FindFunction returns the first function entry named name
func FindFunction(abi []ABIElement, name string) (ABIElement, bool) {
	for _, el := range abi {
		if el.Type == "function" && el.Name == name {
			return el, true
		}
	}
	return ABIElement{}, false
}

func decodeWithPlaceholders(code string) ([]byte, error) {
	code = libraryPlaceholder.ReplaceAllString(NormalizeHex(code), strings.Repeat("0", 40))
	return HexToBytes(code)
}

// rawArtifact covers the union of both layouts; bytecode fields stay raw
// because their shape is what distinguishes the formats
type rawArtifact struct {
	ContractName           string                         `json:"contractName"`
	ABI                    json.RawMessage                `json:"abi"`
	Bytecode               json.RawMessage                `json:"bytecode"`
	DeployedBytecode       json.RawMessage                `json:"deployedBytecode"`
	LinkReferences         map[string]map[string][]Offset `json:"linkReferences"`
	DeployedLinkReferences map[string]map[string][]Offset `json:"deployedLinkReferences"`
	ImmutableReferences    map[string][]Offset            `json:"immutableReferences"`
	MethodIdentifiers      map[string]string              `json:"methodIdentifiers"`
	RawMetadata            string                         `json:"rawMetadata"`
	AST                    json.RawMessage                `json:"ast"`
}

// bytecodeObject is the Foundry bytecode layout
type bytecodeObject struct {
	Object              string                         `json:"object"`
	LinkReferences      map[string]map[string][]Offset `json:"linkReferences"`
	ImmutableReferences map[string][]Offset            `json:"immutableReferences"`
}

// DetectArtifactFormat inspects the top-level structure of an artifact:
// Foundry nests bytecode in an object, Hardhat stores a hex string
func DetectArtifactFormat(raw []byte) (ArtifactFormat, error) {
	var probe struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode json.RawMessage `json:"bytecode"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", fmt.Errorf("parsing artifact JSON: %w", err)
	}
	b := bytes.TrimSpace(probe.Bytecode)
	switch {
	case len(b) > 0 && b[0] == '{':
		return FormatFoundry, nil
	case len(b) > 0 && b[0] == '"':
		return FormatHardhat, nil
	}
	return "", ErrUnknownArtifactFormat
}

// ParseArtifact normalizes a Hardhat or Foundry artifact
func ParseArtifact(raw []byte) (*Artifact, error) {
	format, err := DetectArtifactFormat(raw)
	if err != nil {
		return nil, err
	}

	var r rawArtifact
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}

	art := &Artifact{
		Format:            format,
		ContractName:      r.ContractName,
		ABIJSON:           r.ABI,
		MethodIdentifiers: make(map[string]string),
	}
	if len(r.ABI) > 0 {
		if err := json.Unmarshal(r.ABI, &art.ABI); err != nil {
			return nil, fmt.Errorf("parsing artifact ABI: %w", err)
		}
	}

	immutables := r.ImmutableReferences
	switch format {
	case FormatHardhat:
		if err := json.Unmarshal(r.Bytecode, &art.Bytecode); err != nil {
			return nil, fmt.Errorf("parsing bytecode: %w", err)
		}
		if len(r.DeployedBytecode) > 0 {
			if err := json.Unmarshal(r.DeployedBytecode, &art.DeployedBytecode); err != nil {
				return nil, fmt.Errorf("parsing deployed bytecode: %w", err)
			}
		}
		art.LinkReferences = flattenLinks(r.LinkReferences)
		art.DeployedLinkReferences = flattenLinks(r.DeployedLinkReferences)
	case FormatFoundry:
		var creation, deployed bytecodeObject
		if err := json.Unmarshal(r.Bytecode, &creation); err != nil {
			return nil, fmt.Errorf("parsing bytecode: %w", err)
		}
		if len(r.DeployedBytecode) > 0 {
			if err := json.Unmarshal(r.DeployedBytecode, &deployed); err != nil {
				return nil, fmt.Errorf("parsing deployed bytecode: %w", err)
			}
		}
		art.Bytecode = creation.Object
		art.DeployedBytecode = deployed.Object
		art.LinkReferences = flattenLinks(creation.LinkReferences)
		art.DeployedLinkReferences = flattenLinks(deployed.LinkReferences)
		if len(deployed.ImmutableReferences) > 0 {
			immutables = deployed.ImmutableReferences
		}
		// methodIdentifiers is signature -> selector in Foundry output
		for sig, sel := range r.MethodIdentifiers {
			art.MethodIdentifiers[NormalizeHex(sel)] = sig
		}
		art.CompilerVersion = compilerVersion(r.RawMetadata)
	}
	art.Bytecode = NormalizeHex(art.Bytecode)
	art.DeployedBytecode = NormalizeHex(art.DeployedBytecode)

	names := immutableNamesFromAST(r.AST)
	art.ImmutableReferences = flattenImmutables(immutables, names)

	if err := checkReferenceBounds(art); err != nil {
		return nil, err
	}
	return art, nil
}

func flattenLinks(in map[string]map[string][]Offset) LinkReferences {
	if len(in) == 0 {
		return nil
	}
	out := make(LinkReferences)
	for file, libs := range in {
		for lib, offsets := range libs {
			out[file+":"+lib] = append(out[file+":"+lib], offsets...)
		}
	}
	return out
}

func flattenImmutables(in map[string][]Offset, names map[string]string) []ImmutableReference {
	var refs []ImmutableReference
	for id, offsets := range in {
		name := names[id]
		if name == "" {
			name = id
		}
		for _, o := range offsets {
			refs = append(refs, ImmutableReference{Name: name, ASTID: id, Start: o.Start, Length: o.Length})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Start < refs[j].Start })
	return refs
}

// immutableNamesFromAST walks a solc AST and maps declaration ids of
// immutable variables to their names
func immutableNamesFromAST(ast json.RawMessage) map[string]string {
	names := make(map[string]string)
	if len(ast) == 0 {
		return names
	}
	var root any
	if err := json.Unmarshal(ast, &root); err != nil {
		return names
	}
	var walk func(n any)
	walk = func(n any) {
		switch v := n.(type) {
		case map[string]any:
			if v["nodeType"] == "VariableDeclaration" && v["mutability"] == "immutable" {
				if id, ok := v["id"].(float64); ok {
					if name, ok := v["name"].(string); ok {
						names[strconv.FormatInt(int64(id), 10)] = name
					}
				}
			}
			for _, child := range v {
				walk(child)
			}
		case []any:
			for _, child := range v {
				walk(child)
			}
		}
	}
	walk(root)
	return names
}

func compilerVersion(rawMetadata string) string {
	if rawMetadata == "" {
		return ""
	}
	var meta struct {
		Compiler struct {
			Version string `json:"version"`
		} `json:"compiler"`
	}
	if err := json.Unmarshal([]byte(rawMetadata), &meta); err != nil {
		return ""
	}
	return meta.Compiler.Version
}

func checkReferenceBounds(a *Artifact) error {
	deployedLen := len(a.DeployedBytecode) / 2
	for _, ref := range a.ImmutableReferences {
		if ref.Start < 0 || ref.Length <= 0 || ref.Start+ref.Length > deployedLen {
			return fmt.Errorf("%w: immutable %s at %d+%d (deployed code is %d bytes)",
				ErrOffsetOutOfRange, ref.Name, ref.Start, ref.Length, deployedLen)
		}
	}
	for name, offsets := range a.DeployedLinkReferences {
		for _, o := range offsets {
			if o.Start < 0 || o.Start+o.Length > deployedLen {
				return fmt.Errorf("%w: library %s at %d+%d", ErrOffsetOutOfRange, name, o.Start, o.Length)
			}
		}
	}
	creationLen := len(a.Bytecode) / 2
	for name, offsets := range a.LinkReferences {
		for _, o := range offsets {
			if o.Start < 0 || o.Start+o.Length > creationLen {
				return fmt.Errorf("%w: library %s at %d+%d", ErrOffsetOutOfRange, name, o.Start, o.Length)
			}
		}
	}
	return nil
}
