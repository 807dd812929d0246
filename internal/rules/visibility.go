// internal/rules/visibility.go
package rules

import (
	"github.com/rs/zerolog"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Field-level visibility predicate.
 *
 * Fields and sections may carry a single conditionalVisibility block
 * {dependsOn, condition, value}. It is evaluated inline through
 * VisibilityInterpreter, never through the rule registry, so a template can
 * hide a follow-up question without a named rule.
 *
 * Contract differences from rule conditions (see operators.go):
 *   - notIn is available, the ordering operators stop at greaterThan/lessThan
 *   - a missing dependsOn is compared as null: notEquals/notIn hold
 *   - an unknown operator leaves the element visible
 */

// Conditional is anything that may carry a visibility rule: Field, Section.
type Conditional interface {
	Visibility() *types.FieldVisibilityRule
}

// IsVisible decides whether element should be rendered for data.
func IsVisible(element Conditional, data types.DataContext) bool {
	return isVisible(element.Visibility(), data, zerolog.Nop())
}

func isVisible(rule *types.FieldVisibilityRule, data types.DataContext, logger zerolog.Logger) bool {
	if rule == nil {
		return true
	}
	field := ResolvePath(data, rule.DependsOn)
	visible, err := VisibilityInterpreter.Apply(rule.Condition, field, rule.Value)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("depends_on", rule.DependsOn).
			Str("operator", string(rule.Condition)).
			Msg("visibility condition not understood, element stays visible")
	}
	return visible
}

// VisibleFields filters fields down to the visible ones, preserving order.
func VisibleFields(fields []types.Field, data types.DataContext) []types.Field {
	out := make([]types.Field, 0, len(fields))
	for _, f := range fields {
		if IsVisible(f, data) {
			out = append(out, f)
		}
	}
	return out
}

// VisibleSections filters sections and, within each visible section, its fields.
func VisibleSections(sections []types.Section, data types.DataContext) []types.Section {
	out := make([]types.Section, 0, len(sections))
	for _, s := range sections {
		if !IsVisible(s, data) {
			continue
		}
		s.Fields = VisibleFields(s.Fields, data)
		out = append(out, s)
	}
	return out
}
