package evm

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Operator is a comparison applied as "actual <op> expected"
type Operator string

const (
	OpEq       Operator = "eq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
)

// displayLimit is the length above which FormatForDisplay truncates
const displayLimit = 20

var (
	decimalPattern    = regexp.MustCompile(`^-?\d+$`)
	hexNumberPattern  = regexp.MustCompile(`^0[xX][0-9a-fA-F]+$`)
	addressPattern    = regexp.MustCompile(`^0[xX][0-9a-fA-F]{40}$`)
	scientificPattern = regexp.MustCompile(`^-?\d+(\.\d+)?[eE][+-]?\d+$|^-?\d+\.\d+$`)
)

// ValidOperator reports whether op is a known comparison
func ValidOperator(op Operator) bool {
	switch op {
	case "", OpEq, OpGt, OpGte, OpLt, OpLte, OpContains:
		return true
	}
	return false
}

// NormalizeForComparison maps equivalent representations to one canonical
// string: addresses become lower-case hex, numbers (including 0x hex and
// scientific notation) become decimal, booleans become true/false.
func NormalizeForComparison(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return normalizeString(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case *big.Int:
		if x == nil {
			return ""
		}
		return x.String()
	case big.Int:
		return x.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32:
		return normalizeString(decimal.NewFromFloat32(x).String())
	case float64:
		return normalizeString(decimal.NewFromFloat(x).String())
	case []byte:
		return Hex0x(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = NormalizeForComparison(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case fmt.Stringer:
		return normalizeString(x.String())
	}
	return normalizeString(fmt.Sprintf("%v", v))
}

func normalizeString(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case addressPattern.MatchString(s):
		return strings.ToLower(s)
	case hexNumberPattern.MatchString(s):
		n, ok := new(big.Int).SetString(s[2:], 16)
		if ok {
			return n.String()
		}
	case decimalPattern.MatchString(s):
		n, ok := new(big.Int).SetString(s, 10)
		if ok {
			return n.String()
		}
	case scientificPattern.MatchString(s):
		d, err := decimal.NewFromString(s)
		if err == nil {
			if d.Equal(d.Truncate(0)) {
				return d.BigInt().String()
			}
			return d.String()
		}
	case strings.EqualFold(s, "true"), strings.EqualFold(s, "false"):
		return strings.ToLower(s)
	}
	return s
}

// CompareValues normalizes both operands and evaluates actual <op> expected.
// Ordering operators on non-numeric operands fall back to equality.
func CompareValues(expected, actual any, op Operator) bool {
	e := NormalizeForComparison(expected)
	a := NormalizeForComparison(actual)

	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		ea, okA := new(big.Int).SetString(a, 10)
		ee, okE := new(big.Int).SetString(e, 10)
		if !okA || !okE || !decimalPattern.MatchString(a) || !decimalPattern.MatchString(e) {
			return a == e
		}
		c := ea.Cmp(ee)
		switch op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpContains:
		return strings.Contains(a, e)
	default:
		return a == e
	}
}

// FormatForDisplay renders a value for reports; long strings are shortened
// to their first 10 and last 8 characters
func FormatForDisplay(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case string:
		s = x
	case []byte:
		s = Hex0x(x)
	default:
		return fmt.Sprintf("%v", v)
	}
	if len(s) > displayLimit {
		return s[:10] + "..." + s[len(s)-8:]
	}
	return s
}
