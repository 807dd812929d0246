// internal/rules/validate.go
package rules

import (
	"fmt"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Rule validation at registry insertion.
 *
 * Enforces structural invariants and resource limits when a rule is created,
 * updated or loaded from a bundle, so evaluation never has to.
 *
 * Validation workflow:
 *   1. Name and condition present
 *   2. Tree shape: AND/OR internal nodes, leaves with a field, depth bound
 *   3. Paths within MaxPathDepth, IN lists within MaxInOperatorValues
 *   4. Actions: known type, target present, calculate carries a formula
 *
 * Deliberately not validated here: leaf operators and formula syntax. An
 * unknown operator or a malformed formula is a runtime, non-fatal event
 * (warning, condition false / calculation skipped). Rejecting them at load
 * time would drop the whole rule, including its well-formed actions, for
 * forms whose templates were authored against a newer operator set.
 */

// Validate checks rule for structural errors. Errors wrap sentinels from internal/types.
func Validate(rule *types.Rule) error {
	if rule.Name == "" {
		return types.ErrEmptyRuleName
	}
	if rule.Condition.IsZero() {
		return types.ErrMissingCondition
	}
	if err := validateNode(rule.Condition, 0); err != nil {
		return err
	}
	if len(rule.Actions) > types.MaxActionsPerRule {
		return types.ErrTooManyActions
	}
	for i, a := range rule.Actions {
		if err := validateAction(a); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// validateNode walks the tree depth-first.
func validateNode(node types.ConditionNode, depth int) error {
	if depth > types.MaxTreeDepth {
		return types.ErrTreeTooDeep
	}
	switch {
	case node.Compound != nil:
		op := node.Compound.Operator
		if op != types.LogicalAnd && op != types.LogicalOr {
			return fmt.Errorf("%w: %q", types.ErrInvalidLogicalOperator, op)
		}
		for _, child := range node.Compound.Conditions {
			if err := validateNode(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	case node.Leaf != nil:
		return validateCondition(node.Leaf)
	default:
		return types.ErrMissingCondition
	}
}

// validateCondition checks paths and IN list size for one leaf.
func validateCondition(c *types.Condition) error {
	if _, err := ParsePath(c.Field); err != nil {
		return fmt.Errorf("condition %q: %w", c.Field, err)
	}
	if c.ValueField != "" {
		if _, err := ParsePath(c.ValueField); err != nil {
			return fmt.Errorf("condition %q valueField: %w", c.Field, err)
		}
	}
	if c.Operator == types.OpIn || c.Operator == types.OpNotIn {
		if items, ok := asSlice(c.Value); ok && len(items) > types.MaxInOperatorValues {
			return types.ErrTooManyInValues
		}
	}
	return nil
}

func validateAction(a types.Action) error {
	if !a.Type.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownActionType, a.Type)
	}
	if a.Target == "" {
		return types.ErrMissingTarget
	}
	if a.Type == types.ActionCalculate && a.Formula == "" {
		return types.ErrMissingFormula
	}
	return nil
}
