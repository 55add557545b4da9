package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/state"
	"github.com/pendergraft/integrity-verifier/internal/verification/domain"
)

// markdownContract is the body of a ```verifier block
type markdownContract struct {
	Name               string            `yaml:"name"`
	Address            string            `yaml:"address"`
	Chain              string            `yaml:"chain"`
	Artifact           string            `yaml:"artifact"`
	ArtifactFile       string            `yaml:"artifactFile"`
	IsProxy            bool              `yaml:"isProxy"`
	OZVersion          string            `yaml:"ozVersion"`
	InitializedVersion *uint64           `yaml:"initializedVersion"`
	Schema             string            `yaml:"schema"`
	ConstructorArgs    []any             `yaml:"constructorArgs"`
	Immutables         map[string]any    `yaml:"immutableValues"`
	Libraries          map[string]string `yaml:"libraries"`
}

func (m markdownContract) toDomain(heading string) domain.Contract {
	c := domain.Contract{
		Name:            m.Name,
		Chain:           m.Chain,
		Address:         m.Address,
		ArtifactFile:    m.ArtifactFile,
		IsProxy:         m.IsProxy,
		ConstructorArgs: m.ConstructorArgs,
		Immutables:      m.Immutables,
		Libraries:       m.Libraries,
	}
	if c.Name == "" {
		c.Name = heading
	}
	if c.ArtifactFile == "" {
		c.ArtifactFile = m.Artifact
	}
	if m.OZVersion != "" || m.InitializedVersion != nil || m.Schema != "" {
		c.State = &domain.StateConfig{
			OZVersion:          m.OZVersion,
			InitializedVersion: m.InitializedVersion,
			SchemaFile:         m.Schema,
		}
	}
	return c
}

const contractHeading = "contract:"

// ParseMarkdown reads a suite written as a Markdown document. Each contract
// is a ```verifier YAML block, usually under a "## Contract: Name" heading,
// optionally followed by a state table with the columns
// Type | Description | Check | Params | Expected. A ```chains block declares
// chains; chains it does not declare come from the defaults.
func ParseMarkdown(data []byte) (*domain.Suite, error) {
	suite := &domain.Suite{Chains: make(map[string]chains.Config)}

	var (
		heading  string
		fence    string
		block    bytes.Buffer
		current  *domain.Contract
		lineNo   int
		blockAt  int
		inFence  bool
		hasTitle bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if inFence {
			if strings.HasPrefix(trimmed, "```") {
				inFence = false
				switch fence {
				case "verifier":
					var mc markdownContract
					if err := yaml.Unmarshal(block.Bytes(), &mc); err != nil {
						return nil, fmt.Errorf("verifier block at line %d: %w", blockAt, err)
					}
					suite.Contracts = append(suite.Contracts, mc.toDomain(heading))
					current = &suite.Contracts[len(suite.Contracts)-1]
				case "chains":
					var declared map[string]chains.Config
					if err := yaml.Unmarshal(block.Bytes(), &declared); err != nil {
						return nil, fmt.Errorf("chains block at line %d: %w", blockAt, err)
					}
					for k, v := range declared {
						suite.Chains[k] = v
					}
				}
				block.Reset()
				continue
			}
			block.WriteString(line)
			block.WriteByte('\n')
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "```"):
			inFence = true
			fence = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			blockAt = lineNo
		case strings.HasPrefix(trimmed, "# ") && !hasTitle:
			suite.Name = strings.TrimSpace(trimmed[2:])
			hasTitle = true
		case strings.HasPrefix(trimmed, "#"):
			text := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if strings.HasPrefix(strings.ToLower(text), contractHeading) {
				heading = strings.TrimSpace(text[len(contractHeading):])
			}
		case strings.HasPrefix(trimmed, "|"):
			if current == nil {
				continue
			}
			if err := applyTableRow(current, trimmed); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading markdown: %w", err)
	}
	if inFence {
		return nil, fmt.Errorf("unterminated code block at line %d", blockAt)
	}
	return suite, nil
}

// applyTableRow adds one state check row to c. Header and separator rows are ignored.
func applyTableRow(c *domain.Contract, row string) error {
	cells := splitRow(row)
	if len(cells) == 0 || isSeparator(cells) || strings.EqualFold(cells[0], "type") {
		return nil
	}
	if len(cells) < 5 {
		return fmt.Errorf("state table row needs 5 columns, got %d", len(cells))
	}
	kind, desc, check, params, expectedCell := cells[0], cells[1], stripTicks(cells[2]), cells[3], cells[4]
	op, expected := parseExpected(expectedCell)

	if c.State == nil {
		c.State = &domain.StateConfig{}
	}
	s := c.State

	switch strings.ToLower(kind) {
	case "viewcall":
		s.ViewCalls = append(s.ViewCalls, domain.ViewCallCheck{
			Function:   check,
			Params:     splitParams(params),
			Expected:   expected,
			Comparison: op,
		})
	case "slot":
		typ, offset := slotTypeAndOffset(params)
		s.Slots = append(s.Slots, state.SlotCheck{
			Slot:     check,
			Type:     typ,
			Name:     desc,
			Offset:   offset,
			Expected: expected,
		})
	case "storagepath":
		s.StoragePaths = append(s.StoragePaths, state.StoragePathCheck{
			Path:       check,
			Expected:   expected,
			Comparison: op,
		})
	case "namespace":
		typ, offset := slotTypeAndOffset(params)
		v := state.NamespaceVariable{Name: desc, Type: typ, Offset: uint64(offset), Expected: expected}
		for i := range s.Namespaces {
			if s.Namespaces[i].ID == check {
				s.Namespaces[i].Variables = append(s.Namespaces[i].Variables, v)
				return nil
			}
		}
		s.Namespaces = append(s.Namespaces, state.NamespaceCheck{ID: check, Variables: []state.NamespaceVariable{v}})
	default:
		return fmt.Errorf("unknown check type %q", kind)
	}
	return nil
}

func splitRow(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")
	parts := strings.Split(row, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

func stripTicks(s string) string {
	return strings.Trim(strings.TrimSpace(s), "`")
}

// splitParams reads `a`,`b` or a, b
func splitParams(cell string) []any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	var out []any
	for _, p := range strings.Split(cell, ",") {
		out = append(out, scalar(stripTicks(p)))
	}
	return out
}

// slotTypeAndOffset reads "type" or "type@offset". Unknown types read as uint256.
func slotTypeAndOffset(cell string) (string, int) {
	typ, off, _ := strings.Cut(stripTicks(cell), "@")
	typ = strings.TrimSpace(typ)
	if !evm.IsValueType(typ) {
		typ = "uint256"
	}
	offset, err := strconv.Atoi(strings.TrimSpace(off))
	if err != nil {
		offset = 0
	}
	return typ, offset
}

var expectedOperators = []struct {
	prefix string
	op     evm.Operator
}{
	{">=", evm.OpGte},
	{"<=", evm.OpLte},
	{">", evm.OpGt},
	{"<", evm.OpLt},
	{"contains ", evm.OpContains},
}

// parseExpected reads an optional comparison prefix and the value
func parseExpected(cell string) (evm.Operator, any) {
	v := strings.TrimSpace(cell)
	var op evm.Operator
	for _, e := range expectedOperators {
		if strings.HasPrefix(v, e.prefix) {
			op = e.op
			v = strings.TrimSpace(v[len(e.prefix):])
			break
		}
	}
	return op, scalar(stripTicks(v))
}

func scalar(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
