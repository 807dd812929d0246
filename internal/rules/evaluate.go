// internal/rules/evaluate.go
package rules

import (
	"fmt"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Condition and condition-tree evaluation.
 *
 * Evaluation flow for a leaf:
 *   1. Resolve condition.field against the data context (missing sentinel)
 *   2. Resolve the comparison value: literal, or valueField's current value
 *   3. Apply the operator through RuleInterpreter (missing-value short-circuit)
 *
 * Tree semantics:
 *   - AND: every child holds; an empty AND is vacuously true
 *   - OR: at least one child holds; an empty OR is false
 *   The asymmetry is part of the rule-authoring contract and existing
 *   definitions rely on it. Do not normalize it.
 *
 * Short-circuit: AND stops at the first false child, OR at the first true one.
 * Children are visited in authored order, so warnings are deterministic.
 *
 * Nothing here returns an error. Problems (unknown operator, unknown logical
 * operator, malformed node) become Warnings and the affected node is false.
 */

// WarningKind classifies non-fatal evaluation problems.
type WarningKind string

const (
	WarnUnknownOperator    WarningKind = "unknown_operator"
	WarnInvalidNode        WarningKind = "invalid_node"
	WarnCalculationSkipped WarningKind = "calculation_skipped"
)

// Warning reports a non-fatal problem found during evaluation.
type Warning struct {
	Kind        WarningKind  `json:"kind"`
	RuleID      types.RuleID `json:"ruleId,omitempty"`
	ConditionID string       `json:"conditionId,omitempty"`
	Field       string       `json:"field,omitempty"`
	Message     string       `json:"message"`
}

// reporter receives warnings; a nil reporter discards them.
type reporter func(Warning)

func (r reporter) warn(w Warning) {
	if r != nil {
		r(w)
	}
}

// EvaluateCondition evaluates a single condition against data.
// Referentially transparent: data is only read.
func EvaluateCondition(cond types.Condition, data types.DataContext) bool {
	return evaluateCondition(&cond, data, nil)
}

// EvaluateTree evaluates a condition tree against data.
func EvaluateTree(node types.ConditionNode, data types.DataContext) bool {
	return evaluateNode(node, data, 0, nil)
}

// evaluateNode dispatches on node shape and enforces MaxTreeDepth.
func evaluateNode(node types.ConditionNode, data types.DataContext, depth int, report reporter) bool {
	if depth > types.MaxTreeDepth {
		report.warn(Warning{Kind: WarnInvalidNode, Message: types.ErrTreeTooDeep.Error()})
		return false
	}

	switch {
	case node.Compound != nil:
		return evaluateCompound(node.Compound, data, depth, report)
	case node.Leaf != nil:
		return evaluateCondition(node.Leaf, data, report)
	default:
		report.warn(Warning{Kind: WarnInvalidNode, Message: "condition node has neither a field nor child conditions"})
		return false
	}
}

// evaluateCompound applies AND/OR over children with short-circuit.
func evaluateCompound(c *types.CompoundCondition, data types.DataContext, depth int, report reporter) bool {
	switch c.Operator {
	case types.LogicalAnd:
		for _, child := range c.Conditions {
			if !evaluateNode(child, data, depth+1, report) {
				return false
			}
		}
		return true
	case types.LogicalOr:
		for _, child := range c.Conditions {
			if evaluateNode(child, data, depth+1, report) {
				return true
			}
		}
		return false
	default:
		report.warn(Warning{
			Kind:    WarnInvalidNode,
			Message: fmt.Sprintf("%v: %q", types.ErrInvalidLogicalOperator, c.Operator),
		})
		return false
	}
}

// evaluateCondition orchestrates: resolve field -> resolve comparison value -> compare.
func evaluateCondition(cond *types.Condition, data types.DataContext, report reporter) bool {
	field := ResolvePath(data, cond.Field)

	target := cond.Value
	if cond.ValueField != "" {
		ref := ResolvePath(data, cond.ValueField)
		if !ref.Found && RuleInterpreter.Supports(cond.Operator) && usesComparisonValue(cond.Operator) {
			// Nothing to compare against
			return false
		}
		target = ref.Value
	}

	matched, err := RuleInterpreter.Apply(cond.Operator, field, target)
	if err != nil {
		report.warn(Warning{
			Kind:        WarnUnknownOperator,
			ConditionID: cond.ID,
			Field:       cond.Field,
			Message:     fmt.Sprintf("%v: %q", err, cond.Operator),
		})
	}
	return matched
}

// usesComparisonValue reports whether op reads the comparison value at all.
func usesComparisonValue(op types.Operator) bool {
	return op != types.OpIsEmpty && op != types.OpIsNotEmpty
}
