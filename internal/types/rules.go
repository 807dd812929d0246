// internal/types/rules.go
package types

import (
	"encoding/json"
)

/*
 * Domain types for rule evaluation.
 *
 * Provides Rule, ConditionNode, Condition, CompoundCondition, Action and the
 * field-level FieldVisibilityRule used by internal/rules for evaluation and by
 * internal/bundle and internal/core/db for loading and persistence.
 *
 * Key types:
 *   - Rule: named, priority-ordered, enable-able condition tree plus actions
 *   - ConditionNode: either a leaf Condition or a CompoundCondition (AND/OR)
 *   - Action: typed UI instruction emitted when a rule fires
 *   - Field/Section: form elements carrying an optional FieldVisibilityRule
 *
 * JSON shape: a node carrying a "conditions" key is compound, anything else is a
 * leaf. Trees are built top-down and never contain back-references.
 */

// Operator names a comparison understood by an interpreter.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "notEquals"
	OpGreaterThan        Operator = "greaterThan"
	OpLessThan           Operator = "lessThan"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
	OpContains           Operator = "contains"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "notIn"
	OpIsEmpty            Operator = "isEmpty"
	OpIsNotEmpty         Operator = "isNotEmpty"
)

// LogicalOperator combines the children of a CompoundCondition.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Condition is the smallest evaluable unit: field path + operator + comparison value.
type Condition struct {
	ID         string   `json:"id,omitempty"`
	Field      string   `json:"field"`                // dot-path into the data context
	Operator   Operator `json:"operator"`             // comparison operator
	Value      any      `json:"value,omitempty"`      // literal comparison value
	ValueField string   `json:"valueField,omitempty"` // compare against this field instead of Value
}

// CompoundCondition combines child nodes with AND or OR.
type CompoundCondition struct {
	Operator   LogicalOperator `json:"operator"`
	Conditions []ConditionNode `json:"conditions"`
}

// ConditionNode is one node of a condition tree.
// Exactly one of Leaf or Compound is set on a well-formed node.
type ConditionNode struct {
	Leaf     *Condition
	Compound *CompoundCondition
}

// Leaf wraps a single condition as a tree node.
func Leaf(c Condition) ConditionNode {
	return ConditionNode{Leaf: &c}
}

// And builds an AND node over children.
func And(children ...ConditionNode) ConditionNode {
	return ConditionNode{Compound: &CompoundCondition{Operator: LogicalAnd, Conditions: children}}
}

// Or builds an OR node over children.
func Or(children ...ConditionNode) ConditionNode {
	return ConditionNode{Compound: &CompoundCondition{Operator: LogicalOr, Conditions: children}}
}

// IsZero reports whether the node carries neither a leaf nor a compound.
func (n ConditionNode) IsZero() bool {
	return n.Leaf == nil && n.Compound == nil
}

// MarshalJSON emits the leaf or compound shape directly, without a wrapper object.
func (n ConditionNode) MarshalJSON() ([]byte, error) {
	switch {
	case n.Compound != nil:
		return json.Marshal(n.Compound)
	case n.Leaf != nil:
		return json.Marshal(n.Leaf)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a node, choosing compound when a "conditions" key is present.
func (n *ConditionNode) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		*n = ConditionNode{}
		return nil
	}
	if _, ok := fields["conditions"]; ok {
		var c CompoundCondition
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		*n = ConditionNode{Compound: &c}
		return nil
	}
	var c Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	*n = ConditionNode{Leaf: &c}
	return nil
}

// Clone deep-copies the tree structure. Literal values are shared; they are never mutated.
func (n ConditionNode) Clone() ConditionNode {
	switch {
	case n.Compound != nil:
		children := make([]ConditionNode, len(n.Compound.Conditions))
		for i, child := range n.Compound.Conditions {
			children[i] = child.Clone()
		}
		return ConditionNode{Compound: &CompoundCondition{Operator: n.Compound.Operator, Conditions: children}}
	case n.Leaf != nil:
		leaf := *n.Leaf
		return ConditionNode{Leaf: &leaf}
	default:
		return ConditionNode{}
	}
}

// ActionType enumerates the UI instructions a rule can emit.
type ActionType string

const (
	ActionShow        ActionType = "show"
	ActionHide        ActionType = "hide"
	ActionEnable      ActionType = "enable"
	ActionDisable     ActionType = "disable"
	ActionRequire     ActionType = "require"
	ActionOptional    ActionType = "optional"
	ActionShowWarning ActionType = "showWarning"
	ActionShowAlert   ActionType = "showAlert"
	ActionCalculate   ActionType = "calculate"
)

// Valid reports whether t is one of the supported action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionShow, ActionHide, ActionEnable, ActionDisable, ActionRequire,
		ActionOptional, ActionShowWarning, ActionShowAlert, ActionCalculate:
		return true
	default:
		return false
	}
}

// Action is a typed instruction attached to a rule.
type Action struct {
	ID      ActionID   `json:"id,omitempty"`
	Type    ActionType `json:"type"`
	Target  string     `json:"target"`            // field or section identifier
	Message string     `json:"message,omitempty"` // for showWarning / showAlert
	Formula string     `json:"formula,omitempty"` // for calculate, with {field.path} placeholders
}

// Rule pairs a condition tree with an ordered list of actions.
type Rule struct {
	ID          RuleID        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Enabled     bool          `json:"enabled"`
	Priority    int           `json:"priority"` // lower fires first
	Condition   ConditionNode `json:"condition"`
	Actions     []Action      `json:"actions"`
	Category    string        `json:"category,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
}

// Clone returns a deep copy so registry snapshots cannot be mutated by callers.
func (r *Rule) Clone() *Rule {
	c := *r
	c.Condition = r.Condition.Clone()
	if r.Actions != nil {
		c.Actions = append([]Action(nil), r.Actions...)
	}
	if r.Tags != nil {
		c.Tags = append([]string(nil), r.Tags...)
	}
	return &c
}

// HasTag reports whether the rule carries tag.
func (r *Rule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FieldVisibilityRule is the single-condition visibility block attached to a field or
// section. No AND/OR nesting at this level.
type FieldVisibilityRule struct {
	DependsOn string   `json:"dependsOn"`
	Condition Operator `json:"condition"`
	Value     any      `json:"value,omitempty"`
}

// Field is a form field as supplied by the template schema.
type Field struct {
	ID                    string               `json:"id"`
	Label                 string               `json:"label,omitempty"`
	Type                  string               `json:"type,omitempty"`
	Required              bool                 `json:"required,omitempty"`
	ConditionalVisibility *FieldVisibilityRule `json:"conditionalVisibility,omitempty"`
}

// Visibility returns the field's visibility rule, nil if always visible.
func (f Field) Visibility() *FieldVisibilityRule {
	return f.ConditionalVisibility
}

// Section groups fields and may itself be conditionally visible.
type Section struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title,omitempty"`
	Fields                []Field              `json:"fields,omitempty"`
	ConditionalVisibility *FieldVisibilityRule `json:"conditionalVisibility,omitempty"`
}

// Visibility returns the section's visibility rule, nil if always visible.
func (s Section) Visibility() *FieldVisibilityRule {
	return s.ConditionalVisibility
}
