// internal/rules/engine.go
package rules

import (
	"github.com/rs/zerolog"

	"github.com/solatis/formkeeper/internal/types"
)

// Engine binds a Registry to a Session. It is the entry point used by the
// gRPC service and the CLI; the package-level functions remain available for
// callers that manage their own rule slices.
type Engine struct {
	registry *Registry
	session  *Session
	logger   zerolog.Logger
}

// NewEngine creates an engine over registry. observer may be nil.
func NewEngine(registry *Registry, logger zerolog.Logger, observer Observer) *Engine {
	logger = logger.With().Str("component", "rules").Logger()
	return &Engine{
		registry: registry,
		session:  NewSession(logger, observer),
		logger:   logger,
	}
}

// Registry returns the underlying registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Evaluate runs the current rule set against data.
// The rule set is snapshotted first, so concurrent edits do not affect this call.
func (e *Engine) Evaluate(data types.DataContext, opts Options) *EvaluationResult {
	return e.session.Evaluate(e.registry.List(), data, opts)
}

// IsVisible decides whether a field or section should be rendered, logging
// visibility conditions that could not be understood.
func (e *Engine) IsVisible(element Conditional, data types.DataContext) bool {
	return isVisible(element.Visibility(), data, e.logger)
}

// GetRuleExplanation renders rule id without evaluating it.
func (e *Engine) GetRuleExplanation(id types.RuleID) (Explanation, error) {
	return e.registry.Explain(id)
}
