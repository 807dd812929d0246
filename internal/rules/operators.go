// internal/rules/operators.go
package rules

import (
	"strings"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Operator comparison logic shared by both condition interpreters.
 *
 * One operator table backs two interpreters that differ only in configuration:
 *
 *   RuleInterpreter (rule conditions):
 *     equals, notEquals, greaterThan, lessThan, greaterThanOrEqual,
 *     lessThanOrEqual, contains, in, isEmpty, isNotEmpty.
 *     Missing value short-circuits: only isEmpty holds.
 *     Unknown operator: false.
 *
 *   VisibilityInterpreter (field-level conditionalVisibility):
 *     equals, notEquals, contains, greaterThan, lessThan, in, notIn,
 *     isEmpty, isNotEmpty.
 *     Missing value is compared as null, so notEquals and notIn hold.
 *     Unknown operator: visible.
 *
 * Both operator lists and missing-value policies are compatibility contracts
 * with existing form definitions. Keep them independent; an operator added to
 * one interpreter must not silently appear in the other.
 *
 * Why function-based: the operator semantics are identical across interpreters
 * and vary only by the gate in front of them, so a switch keeps them in one place.
 */

// MissingPolicy controls how an interpreter treats an unresolvable field path.
type MissingPolicy int

const (
	// MissingShortCircuit: isEmpty holds, every other operator fails.
	MissingShortCircuit MissingPolicy = iota
	// MissingAsNull: the operator runs against a nil value.
	MissingAsNull
)

// Interpreter evaluates single comparisons under a fixed operator set.
type Interpreter struct {
	Name      string
	Operators map[types.Operator]bool
	Missing   MissingPolicy
	// UnknownResult is returned for operators outside Operators.
	UnknownResult bool
}

// RuleInterpreter evaluates conditions inside rule trees.
var RuleInterpreter = &Interpreter{
	Name: "rule",
	Operators: operatorSet(
		types.OpEquals, types.OpNotEquals,
		types.OpGreaterThan, types.OpLessThan,
		types.OpGreaterThanOrEqual, types.OpLessThanOrEqual,
		types.OpContains, types.OpIn,
		types.OpIsEmpty, types.OpIsNotEmpty,
	),
	Missing:       MissingShortCircuit,
	UnknownResult: false,
}

// VisibilityInterpreter evaluates field and section conditionalVisibility blocks.
var VisibilityInterpreter = &Interpreter{
	Name: "visibility",
	Operators: operatorSet(
		types.OpEquals, types.OpNotEquals,
		types.OpContains,
		types.OpGreaterThan, types.OpLessThan,
		types.OpIn, types.OpNotIn,
		types.OpIsEmpty, types.OpIsNotEmpty,
	),
	Missing:       MissingAsNull,
	UnknownResult: true,
}

func operatorSet(ops ...types.Operator) map[types.Operator]bool {
	set := make(map[types.Operator]bool, len(ops))
	for _, op := range ops {
		set[op] = true
	}
	return set
}

// Supports reports whether op belongs to the interpreter's operator set.
func (in *Interpreter) Supports(op types.Operator) bool {
	return in.Operators[op]
}

// Apply evaluates op for a resolved field against target.
// Returns ErrUnknownOperator (with UnknownResult) for unsupported operators.
func (in *Interpreter) Apply(op types.Operator, field ResolveResult, target any) (bool, error) {
	if !in.Supports(op) {
		return in.UnknownResult, types.ErrUnknownOperator
	}
	if !field.Found && in.Missing == MissingShortCircuit {
		return op == types.OpIsEmpty, nil
	}
	return Compare(op, field.Value, target), nil
}

// Compare applies the operator to compare value against target.
// Unknown operators compare false; gating belongs to the Interpreter.
func Compare(op types.Operator, value, target any) bool {
	switch op {
	case types.OpEquals:
		return StrictEqual(value, target)
	case types.OpNotEquals:
		return !StrictEqual(value, target)
	case types.OpGreaterThan:
		return ParseFloat(value) > ParseFloat(target)
	case types.OpLessThan:
		return ParseFloat(value) < ParseFloat(target)
	case types.OpGreaterThanOrEqual:
		return ParseFloat(value) >= ParseFloat(target)
	case types.OpLessThanOrEqual:
		return ParseFloat(value) <= ParseFloat(target)
	case types.OpContains:
		return compareContains(value, target)
	case types.OpIn:
		return compareIn(value, target)
	case types.OpNotIn:
		return !compareIn(value, target)
	case types.OpIsEmpty:
		return IsEmptyValue(value)
	case types.OpIsNotEmpty:
		return !IsEmptyValue(value)
	default:
		return false
	}
}

// compareContains: case-insensitive substring for strings, exact element
// membership for arrays. Other field types never contain anything.
func compareContains(value, target any) bool {
	if s, ok := value.(string); ok {
		if target == nil {
			return false
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(toText(target)))
	}
	if items, ok := asSlice(value); ok {
		for _, item := range items {
			if StrictEqual(item, target) {
				return true
			}
		}
	}
	return false
}

// compareIn checks if value is a member of the array set using strict equality.
// A non-array set contains nothing.
func compareIn(value, set any) bool {
	items, ok := asSlice(set)
	if !ok {
		return false
	}
	for _, item := range items {
		if StrictEqual(value, item) {
			return true
		}
	}
	return false
}
