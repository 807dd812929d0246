// internal/rules/fieldpath.go
package rules

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Field path resolution for form data contexts.
 *
 * Resolves dot-notation paths ("patient.vitals.weight", "medications.0.name")
 * through nested maps and slices by sequential key traversal. An absent key,
 * an out-of-range index, or a nil/scalar intermediate yields the "missing"
 * sentinel (Found == false, ErrFieldNotFound). A present key holding nil is
 * found, with a nil Value: null and missing are different things.
 *
 * Key functions:
 *   - ParsePath: splits and validates a dot-path against MaxPathDepth
 *   - Resolve: traverses data following the segments
 *   - ResolvePath: ParsePath + Resolve, collapsing errors into "missing"
 *
 * Data contexts arrive as JSON-shaped maps from the renderer, but Go callers may
 * hand in typed maps/slices (map[string]string, []string). Those are handled by
 * a reflection fallback so traversal never depends on the caller's concrete types.
 */

// ResolveResult contains the resolved value.
type ResolveResult struct {
	Value any  // resolved value (nil if not found or explicitly null)
	Found bool // true if every segment resolved
}

// ParsePath splits a dot-path into segments.
// Returns ErrEmptyFieldPath for "" and ErrPathTooDeep beyond MaxPathDepth.
func ParsePath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, types.ErrEmptyFieldPath
	}
	segments := strings.Split(path, ".")
	if len(segments) > types.MaxPathDepth {
		return nil, types.ErrPathTooDeep
	}
	return segments, nil
}

// Resolve traverses data following path segments.
// Returns ErrFieldNotFound if any segment is absent.
func Resolve(path []string, data types.DataContext) (ResolveResult, error) {
	if len(path) > types.MaxPathDepth {
		return ResolveResult{}, types.ErrPathTooDeep
	}
	return resolveRecursive(path, map[string]any(data))
}

// ResolvePath resolves a dot-path, reporting malformed paths as missing.
func ResolvePath(data types.DataContext, path string) ResolveResult {
	segments, err := ParsePath(path)
	if err != nil {
		return ResolveResult{}
	}
	result, err := Resolve(segments, data)
	if err != nil {
		return ResolveResult{}
	}
	return result
}

// resolveRecursive walks one segment at a time.
func resolveRecursive(path []string, current any) (ResolveResult, error) {
	if len(path) == 0 {
		return ResolveResult{Value: current, Found: true}, nil
	}

	seg := path[0]
	remaining := path[1:]

	switch v := current.(type) {
	case map[string]any:
		val, ok := v[seg]
		if !ok {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, val)

	case types.DataContext:
		return resolveRecursive(path, map[string]any(v))

	case []any:
		idx, ok := parseIndex(seg, len(v))
		if !ok {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(remaining, v[idx])

	case nil:
		// Null value at intermediate position
		return ResolveResult{}, types.ErrFieldNotFound

	default:
		return resolveReflect(path, current)
	}
}

// resolveReflect handles typed maps and slices supplied by Go callers.
// Scalars with a remaining path are missing.
func resolveReflect(path []string, current any) (ResolveResult, error) {
	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		val := rv.MapIndex(reflect.ValueOf(path[0]).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(path[1:], val.Interface())
	case reflect.Slice, reflect.Array:
		idx, ok := parseIndex(path[0], rv.Len())
		if !ok {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		return resolveRecursive(path[1:], rv.Index(idx).Interface())
	default:
		// Scalar value but path continues
		return ResolveResult{}, types.ErrFieldNotFound
	}
}

// parseIndex converts a path segment to a slice index within [0, length).
func parseIndex(seg string, length int) (int, bool) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 || idx >= length {
		return 0, false
	}
	return idx, true
}
