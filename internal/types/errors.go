package types

import "errors"

// Sentinel errors for formkeeper operations.
var (
	// ErrRuleNotFound indicates an update/delete/toggle/explain for an unknown rule id.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRule indicates a create with an id already in the registry.
	ErrDuplicateRule = errors.New("rule already exists")

	// ErrEmptyRuleName indicates a rule without a human-readable name.
	ErrEmptyRuleName = errors.New("rule name is required")

	// ErrMissingCondition indicates a rule without a condition.
	ErrMissingCondition = errors.New("rule condition is required")

	// ErrInvalidLogicalOperator indicates a compound node that is neither AND nor OR.
	ErrInvalidLogicalOperator = errors.New("compound condition operator must be AND or OR")

	// ErrTreeTooDeep indicates a condition tree exceeds MaxTreeDepth.
	ErrTreeTooDeep = errors.New("condition tree exceeds maximum depth")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrEmptyFieldPath indicates a condition without a field.
	ErrEmptyFieldPath = errors.New("field path is empty")

	// ErrTooManyInValues indicates an IN operator exceeds MaxInOperatorValues.
	ErrTooManyInValues = errors.New("IN operator has too many values")

	// ErrTooManyActions indicates a rule exceeds MaxActionsPerRule.
	ErrTooManyActions = errors.New("rule has too many actions")

	// ErrUnknownActionType indicates an action type outside the supported set.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrMissingTarget indicates an action without a target field or section.
	ErrMissingTarget = errors.New("action target is required")

	// ErrMissingFormula indicates a calculate action without a formula.
	ErrMissingFormula = errors.New("calculate action requires a formula")

	// ErrUnknownOperator indicates a condition operator the interpreter does not support.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrFieldNotFound indicates a field path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrFormulaSyntax indicates a calculate formula could not be parsed.
	ErrFormulaSyntax = errors.New("formula syntax error")

	// ErrNonNumericValue indicates a formula placeholder resolved to a non-numeric value.
	ErrNonNumericValue = errors.New("formula placeholder is not numeric")

	// ErrDivisionByZero indicates a formula divided by zero.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrNonFiniteResult indicates a formula produced NaN or Inf.
	ErrNonFiniteResult = errors.New("formula result is not finite")
)
