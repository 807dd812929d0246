// Package types provides domain models shared across formkeeper components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only encoding/json so
// the form renderer and the rule store can share definitions without pulling in the
// evaluation engine. ID utilities in ids.go import uuid.
//
// Wire-format agnostic: YAML bundles and gRPC structpb payloads are converted to these
// types at the boundary (internal/bundle, internal/core/api).
package types

// RuleID identifies a rule in the registry.
// String alias keeps JSON serialization plain while preventing mixups with field paths.
type RuleID string

// ActionID identifies an action inside a rule.
type ActionID string

// DataContext is the form's current field-value mapping, addressed by dot-path.
// Values are JSON-shaped: string, float64/int, bool, nil, []any, map[string]any.
type DataContext map[string]any

// Resource limits enforced when rules enter the registry.
const (
	// MaxPathDepth bounds dot-path traversal.
	// 16 levels covers nested sections like patient.history.surgical.0.date comfortably.
	MaxPathDepth = 16

	// MaxTreeDepth bounds condition tree nesting to keep recursion shallow.
	MaxTreeDepth = 32

	// MaxInOperatorValues limits IN / NOT IN list size.
	// Larger vocabularies belong in a terminology service, not a form rule.
	MaxInOperatorValues = 256

	// MaxActionsPerRule caps actions emitted by a single rule.
	MaxActionsPerRule = 64
)
