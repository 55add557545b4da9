package state

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned for malformed storage paths
var ErrInvalidPath = errors.New("invalid path")

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SegmentKind is the kind of one traversal step
type SegmentKind int

const (
	SegmentField SegmentKind = iota
	SegmentIndex
	SegmentLength
	SegmentMapKey
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentField:
		return "field"
	case SegmentIndex:
		return "index"
	case SegmentLength:
		return "length"
	case SegmentMapKey:
		return "mapKey"
	}
	return "unknown"
}

// Segment is one step of a storage path
type Segment struct {
	Kind  SegmentKind
	Name  string
	Index uint64
	Key   string
}

// Path is a parsed storage path rooted at a schema struct
type Path struct {
	Struct   string
	Segments []Segment
}

// ParsePath parses "StructName:field.sub[key][0].length" into a traversal
// plan. Bracket contents are an array index when numeric, "length" for a
// dynamic array's length, and a mapping key otherwise. Quotes around keys
// are dropped.
func ParsePath(expr string) (*Path, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: path must be a non-empty string", ErrInvalidPath)
	}
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: path cannot be empty or whitespace", ErrInvalidPath)
	}

	colon := strings.Index(trimmed, ":")
	switch {
	case colon == -1:
		return nil, fmt.Errorf("%w: %s. Expected \"StructName:path.to.field\"", ErrInvalidPath, expr)
	case colon == 0:
		return nil, fmt.Errorf("%w: %s. Struct name cannot be empty", ErrInvalidPath, expr)
	}

	structName := trimmed[:colon]
	rest := trimmed[colon+1:]
	if !identifierPattern.MatchString(structName) {
		return nil, fmt.Errorf("%w: struct name %s. Must be a valid identifier", ErrInvalidPath, structName)
	}
	if rest == "" {
		return nil, fmt.Errorf("%w: %s. Field path cannot be empty", ErrInvalidPath, expr)
	}

	p := &Path{Struct: structName}
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			p.Segments = append(p.Segments, Segment{Kind: SegmentField, Name: current.String()})
			current.Reset()
		}
	}

	for i := 0; i < len(rest); {
		switch c := rest[i]; c {
		case '.':
			flush()
			i++
		case '[':
			flush()
			end := strings.IndexByte(rest[i:], ']')
			if end == -1 {
				return nil, fmt.Errorf("%w: unclosed bracket in path: %s", ErrInvalidPath, expr)
			}
			seg, err := bracketSegment(rest[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPath, expr, err)
			}
			p.Segments = append(p.Segments, seg)
			i += end + 1
		default:
			current.WriteByte(c)
			i++
		}
	}

	if current.String() == "length" && len(p.Segments) > 0 {
		p.Segments = append(p.Segments, Segment{Kind: SegmentLength})
	} else {
		flush()
	}
	return p, nil
}

func bracketSegment(content string) (Segment, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "length":
		return Segment{Kind: SegmentLength}, nil
	case content == "":
		return Segment{}, errors.New("empty brackets")
	case isDigits(content):
		n, err := strconv.ParseUint(content, 10, 64)
		if err != nil {
			return Segment{}, fmt.Errorf("array index %s out of range", content)
		}
		return Segment{Kind: SegmentIndex, Index: n}, nil
	}
	if len(content) >= 2 && (content[0] == '"' || content[0] == '\'') && content[len(content)-1] == content[0] {
		content = content[1 : len(content)-1]
	}
	return Segment{Kind: SegmentMapKey, Key: content}, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// String renders the path back in its textual form
func (p *Path) String() string {
	var b strings.Builder
	b.WriteString(p.Struct)
	b.WriteByte(':')
	for i, s := range p.Segments {
		switch s.Kind {
		case SegmentField:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(s.Name)
		case SegmentIndex:
			fmt.Fprintf(&b, "[%d]", s.Index)
		case SegmentLength:
			b.WriteString("[length]")
		case SegmentMapKey:
			fmt.Fprintf(&b, "[%s]", s.Key)
		}
	}
	return b.String()
}
