// internal/rules/explain.go
package rules

import (
	"fmt"
	"strings"

	"github.com/solatis/formkeeper/internal/types"
)

// Explanation is the human-readable account of a rule, used both for fired
// rules in an EvaluationResult and for the debug/explain UI.
type Explanation struct {
	RuleID        types.RuleID `json:"ruleId"`
	RuleName      string       `json:"ruleName"`
	ConditionText string       `json:"conditionText"`
	ActionTexts   []string     `json:"actionTexts"`
	Explanation   string       `json:"explanation"`
}

// Explain renders rule as text. It does not evaluate anything.
func Explain(rule *types.Rule) Explanation {
	cond := ConditionText(rule.Condition)
	actions := make([]string, len(rule.Actions))
	for i, a := range rule.Actions {
		actions[i] = ActionText(a)
	}

	then := "do nothing"
	if len(actions) > 0 {
		then = strings.Join(actions, "; ")
	}

	return Explanation{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		ConditionText: cond,
		ActionTexts:   actions,
		Explanation:   fmt.Sprintf("%s: when %s, then %s.", rule.Name, cond, then),
	}
}

// ConditionText renders a condition tree, parenthesizing nested compounds.
func ConditionText(node types.ConditionNode) string {
	return conditionText(node, true)
}

func conditionText(node types.ConditionNode, top bool) string {
	switch {
	case node.Leaf != nil:
		return leafText(node.Leaf)
	case node.Compound != nil:
		c := node.Compound
		if len(c.Conditions) == 0 {
			if c.Operator == types.LogicalOr {
				return "never (empty OR)"
			}
			return "always (empty AND)"
		}
		parts := make([]string, len(c.Conditions))
		for i, child := range c.Conditions {
			parts[i] = conditionText(child, false)
		}
		text := strings.Join(parts, " "+string(c.Operator)+" ")
		if top || len(parts) == 1 {
			return text
		}
		return "(" + text + ")"
	default:
		return "<empty condition>"
	}
}

var operatorWords = map[types.Operator]string{
	types.OpEquals:             "equals",
	types.OpNotEquals:          "does not equal",
	types.OpGreaterThan:        "is greater than",
	types.OpLessThan:           "is less than",
	types.OpGreaterThanOrEqual: "is at least",
	types.OpLessThanOrEqual:    "is at most",
	types.OpContains:           "contains",
	types.OpIn:                 "is one of",
	types.OpNotIn:              "is not one of",
	types.OpIsEmpty:            "is empty",
	types.OpIsNotEmpty:         "is not empty",
}

func leafText(c *types.Condition) string {
	word, ok := operatorWords[c.Operator]
	if !ok {
		word = string(c.Operator)
	}
	if !usesComparisonValue(c.Operator) {
		return c.Field + " " + word
	}
	if c.ValueField != "" {
		return fmt.Sprintf("%s %s field %s", c.Field, word, c.ValueField)
	}
	return fmt.Sprintf("%s %s %s", c.Field, word, literalText(c.Value))
}

func literalText(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case nil:
		return "null"
	}
	if items, ok := asSlice(v); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = literalText(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return toText(v)
}

// ActionText renders one action.
func ActionText(a types.Action) string {
	switch a.Type {
	case types.ActionShow:
		return "show " + a.Target
	case types.ActionHide:
		return "hide " + a.Target
	case types.ActionEnable:
		return "enable " + a.Target
	case types.ActionDisable:
		return "disable " + a.Target
	case types.ActionRequire:
		return "require " + a.Target
	case types.ActionOptional:
		return "make " + a.Target + " optional"
	case types.ActionShowWarning:
		return fmt.Sprintf("show warning on %s: %s", a.Target, a.Message)
	case types.ActionShowAlert:
		return fmt.Sprintf("show alert on %s: %s", a.Target, a.Message)
	case types.ActionCalculate:
		return fmt.Sprintf("set %s = %s", a.Target, a.Formula)
	default:
		return fmt.Sprintf("%s %s", a.Type, a.Target)
	}
}
