// internal/rules/actions.go
package rules

import (
	"fmt"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Action normalization and application.
 *
 * normalizeActions turns a fired rule's actions into consumer-agnostic
 * NormalizedActions tagged with the originating rule. calculate actions are
 * evaluated here against the same data snapshot the rule was matched on;
 * a failed calculation is kept in the list with Skipped set, so the UI can
 * show why a derived value did not update, and no value is produced for it.
 *
 * ApplyActions is the consumer side: it replays an ordered action list onto a
 * copy of the data context and a FormState. Later actions win per target, so
 * a show followed by a hide resolves to hidden. The engine itself never calls
 * it during a session; callers that want cascading effects apply the actions
 * and evaluate again.
 */

// NormalizedAction is one entry of EvaluationResult.Actions.
type NormalizedAction struct {
	ID         types.ActionID   `json:"id,omitempty"`
	Type       types.ActionType `json:"type"`
	Target     string           `json:"target"`
	Message    string           `json:"message,omitempty"`
	Formula    string           `json:"formula,omitempty"`
	Value      *float64         `json:"value,omitempty"`      // calculate result
	Skipped    bool             `json:"skipped,omitempty"`    // calculate aborted
	SkipReason string           `json:"skipReason,omitempty"` // why it aborted
	RuleID     types.RuleID     `json:"ruleId"`
	RuleName   string           `json:"ruleName"`
}

// normalizeActions tags each action with its rule and computes calculate values.
func normalizeActions(rule *types.Rule, data types.DataContext, report reporter) []NormalizedAction {
	out := make([]NormalizedAction, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		na := NormalizedAction{
			ID:       a.ID,
			Type:     a.Type,
			Target:   a.Target,
			Message:  a.Message,
			Formula:  a.Formula,
			RuleID:   rule.ID,
			RuleName: rule.Name,
		}
		if a.Type == types.ActionCalculate {
			value, err := Calculate(a.Formula, data)
			if err != nil {
				na.Skipped = true
				na.SkipReason = err.Error()
				report.warn(Warning{
					Kind:    WarnCalculationSkipped,
					RuleID:  rule.ID,
					Field:   a.Target,
					Message: fmt.Sprintf("calculation skipped: %v", err),
				})
			} else {
				na.Value = &value
			}
		}
		out = append(out, na)
	}
	return out
}

// TargetState is the accumulated effect of actions on one field or section.
// Nil flags were not touched by any action.
type TargetState struct {
	Visible  *bool    `json:"visible,omitempty"`
	Enabled  *bool    `json:"enabled,omitempty"`
	Required *bool    `json:"required,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Alerts   []string `json:"alerts,omitempty"`

	// Unwritten marks a calculated value whose target path could not hold it.
	Unwritten bool `json:"unwritten,omitempty"`
}

// FormState maps targets to their accumulated state.
type FormState map[string]*TargetState

// IsHidden reports whether target was hidden by the last visibility action.
func (s FormState) IsHidden(target string) bool {
	st, ok := s[target]
	return ok && st.Visible != nil && !*st.Visible
}

// IsRequired reports whether target was required by the last require/optional action.
func (s FormState) IsRequired(target string) bool {
	st, ok := s[target]
	return ok && st.Required != nil && *st.Required
}

func (s FormState) target(name string) *TargetState {
	st, ok := s[name]
	if !ok {
		st = &TargetState{}
		s[name] = st
	}
	return st
}

// ApplyActions replays actions in order onto a copy of data.
// Calculated values are written to their target path; skipped ones are not.
// A target the data cannot hold is marked Unwritten in the returned state.
func ApplyActions(data types.DataContext, actions []NormalizedAction) (types.DataContext, FormState) {
	next := types.DataContext(deepCopyMap(map[string]any(data)))
	state := FormState{}

	for _, a := range actions {
		switch a.Type {
		case types.ActionShow:
			state.target(a.Target).Visible = boolPtr(true)
		case types.ActionHide:
			state.target(a.Target).Visible = boolPtr(false)
		case types.ActionEnable:
			state.target(a.Target).Enabled = boolPtr(true)
		case types.ActionDisable:
			state.target(a.Target).Enabled = boolPtr(false)
		case types.ActionRequire:
			state.target(a.Target).Required = boolPtr(true)
		case types.ActionOptional:
			state.target(a.Target).Required = boolPtr(false)
		case types.ActionShowWarning:
			st := state.target(a.Target)
			st.Warnings = append(st.Warnings, a.Message)
		case types.ActionShowAlert:
			st := state.target(a.Target)
			st.Alerts = append(st.Alerts, a.Message)
		case types.ActionCalculate:
			if a.Value != nil && !a.Skipped && !setPath(map[string]any(next), a.Target, *a.Value) {
				state.target(a.Target).Unwritten = true
			}
		}
	}
	return next, state
}

func boolPtr(b bool) *bool {
	return &b
}

// setPath writes value at a dot-path, creating missing intermediate maps.
// Numeric segments index existing []any elements. It reports false, leaving
// data unchanged, when the path runs through a scalar, a null, an
// out-of-range index or a typed container.
func setPath(data map[string]any, path string, value any) bool {
	segments, err := ParsePath(path)
	if err != nil {
		return false
	}
	return setSegments(data, segments, value)
}

func setSegments(container any, segments []string, value any) bool {
	seg, last := segments[0], len(segments) == 1
	switch c := container.(type) {
	case types.DataContext:
		return setSegments(map[string]any(c), segments, value)
	case map[string]any:
		if last {
			c[seg] = value
			return true
		}
		child, exists := c[seg]
		if child == nil {
			if exists {
				return false
			}
			child = map[string]any{}
			c[seg] = child
		}
		return setSegments(child, segments[1:], value)
	case []any:
		idx, ok := parseIndex(seg, len(c))
		if !ok {
			return false
		}
		if last {
			c[idx] = value
			return true
		}
		return setSegments(c[idx], segments[1:], value)
	default:
		return false
	}
}

// deepCopyMap copies nested maps and slices so writes never reach the caller's data.
func deepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case types.DataContext:
		return deepCopyMap(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

