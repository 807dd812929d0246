// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Value coercion for rule evaluation.
 *
 * Form data is loosely typed: the renderer hands over strings for number
 * inputs ("70"), numbers for sliders, arrays for multi-selects. Two numeric
 * modes exist and are deliberately different:
 *
 *   - ParseFloat: lenient parse-as-float used by ordering operators. Leading
 *     whitespace is skipped and the longest numeric prefix wins ("12kg" -> 12).
 *     Anything without a numeric prefix becomes NaN, and NaN compares false
 *     against everything, so non-numeric input never satisfies an ordering.
 *   - ToNumber: strict mode used by formula placeholders. The whole value must
 *     be a number; "12kg" and booleans are rejected with ErrNonNumericValue.
 *
 * Equality is strict: numbers compare numerically across Go numeric types,
 * strings and booleans by value, nil only equals nil, composites never match.
 */

// ParseFloat converts value to float64 using parse-as-float semantics.
// Returns NaN when no numeric prefix exists.
func ParseFloat(value any) float64 {
	if f, ok := toFloat64(value); ok {
		return f
	}
	switch v := value.(type) {
	case string:
		return parseFloatPrefix(v)
	case nil, bool:
		return math.NaN()
	}
	if items, ok := asSlice(value); ok {
		return parseFloatPrefix(joinText(items))
	}
	return math.NaN()
}

// ToNumber converts value to float64 in strict mode for formula evaluation.
// Accepts numeric types and fully numeric strings (surrounding whitespace trimmed).
func ToNumber(value any) (float64, error) {
	if f, ok := toFloat64(value); ok {
		return f, nil
	}
	s, ok := value.(string)
	if !ok {
		return 0, types.ErrNonNumericValue
	}
	s = strings.TrimSpace(s)
	if s == "" {
		// Empty/whitespace-only strings are not valid numbers
		return 0, types.ErrNonNumericValue
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, types.ErrNonNumericValue
	}
	return f, nil
}

// toFloat64 converts value to float64 if it's a numeric type.
// Handles float64 from JSON, int from YAML, and the other Go numeric kinds.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// parseFloatPrefix parses the longest decimal prefix of s after leading whitespace.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := scanDecimal(s)
	if end == 0 {
		return math.NaN()
	}
	prefix := s[:end]
	switch strings.TrimLeft(prefix, "+-") {
	case "Infinity":
		if strings.HasPrefix(prefix, "-") {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	f, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// scanDecimal returns the length of the decimal literal at the start of s, 0 if none.
// Grammar: [+-] ( "Infinity" | digits [. digits] | . digits ) [ (e|E) [+-] digits ].
func scanDecimal(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		return i + len("Infinity")
	}
	intDigits := countDigits(s[i:])
	i += intDigits
	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		fracDigits = countDigits(s[i+1:])
		if intDigits > 0 || fracDigits > 0 {
			i += 1 + fracDigits
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if n := countDigits(s[j:]); n > 0 {
			i = j + n
		}
	}
	return i
}

func countDigits(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}

// StrictEqual compares two values without type juggling.
func StrictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := toFloat64(a); ok {
		nb, ok := toFloat64(b)
		// NaN != NaN falls out of the float comparison
		return ok && na == nb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// IsEmptyValue reports string-empty, zero-length array, or falsy values.
// Falsy: nil, false, numeric zero, NaN.
func IsEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return v == ""
	case bool:
		return !v
	}
	if f, ok := toFloat64(value); ok {
		return f == 0 || math.IsNaN(f)
	}
	if items, ok := asSlice(value); ok {
		return len(items) == 0
	}
	return false
}

// asSlice exposes slice-valued fields as []any. Strings and byte slices are not arrays.
func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return items, true
	case string, []byte, nil:
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// toText renders a scalar the way form inputs display it.
func toText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	if f, ok := toFloat64(value); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if items, ok := asSlice(value); ok {
		return joinText(items)
	}
	return fmt.Sprintf("%v", value)
}

// joinText renders array elements comma-separated, with null elements as empty strings.
func joinText(items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		if item != nil {
			parts[i] = toText(item)
		}
	}
	return strings.Join(parts, ",")
}
