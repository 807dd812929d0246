// internal/rules/session.go
package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Evaluation session: one pass of a rule set over one data snapshot.
 *
 * Evaluation flow:
 *   1. Keep enabled rules
 *   2. Stable sort by ascending priority (ties keep the caller's order)
 *   3. For each rule whose condition holds: record it as fired, append its
 *      normalized actions unless TriggerActions is false, always append an
 *      explanation
 *   4. Return; nothing is re-evaluated inside the call
 *
 * Why no cascading: an action from rule A that would change the data (a
 * calculate, or a UI effect the renderer turns into new input) does not
 * retrigger rule B in the same call. Callers apply the actions and evaluate
 * again. This keeps each call bounded by rules x tree size and makes it safe
 * to run on every keystroke.
 *
 * Ordering is part of the output contract: consumers apply actions in
 * sequence, so show-then-hide on one target must come out in firing order.
 *
 * Purity: neither rules nor data are mutated. Warnings are collected into the
 * result and logged; a rule that fails internally is reported and skipped
 * without affecting the rest.
 */

// Options controls one evaluation.
type Options struct {
	// TriggerActions=false still reports fired rules and explanations but no actions.
	TriggerActions bool
}

// DefaultOptions triggers actions.
func DefaultOptions() Options {
	return Options{TriggerActions: true}
}

// EvaluationResult is recomputed on every call and never persisted.
type EvaluationResult struct {
	Fired        []*types.Rule      `json:"fired"`
	Actions      []NormalizedAction `json:"actions"`
	Explanations []Explanation      `json:"explanations"`
	Calculated   map[string]float64 `json:"calculated,omitempty"` // target -> value, last write wins
	Warnings     []Warning          `json:"warnings,omitempty"`
}

// FiredIDs lists fired rule ids in firing order.
func (r *EvaluationResult) FiredIDs() []types.RuleID {
	ids := make([]types.RuleID, len(r.Fired))
	for i, rule := range r.Fired {
		ids[i] = rule.ID
	}
	return ids
}

// Observer receives evaluation telemetry. Implemented by internal/core/metrics.
type Observer interface {
	ObserveEvaluation(duration time.Duration, evaluated, fired int)
	ObserveRuleFired(ruleID types.RuleID)
	ObserveWarning(kind WarningKind)
}

// Session evaluates rule sets. It holds no per-call state and is safe for concurrent use.
type Session struct {
	logger   zerolog.Logger
	observer Observer
}

// NewSession creates a session logging warnings to logger. observer may be nil.
func NewSession(logger zerolog.Logger, observer Observer) *Session {
	return &Session{logger: logger, observer: observer}
}

// Evaluate runs rules against data with a silent session.
func Evaluate(rules []*types.Rule, data types.DataContext, opts Options) *EvaluationResult {
	return NewSession(zerolog.Nop(), nil).Evaluate(rules, data, opts)
}

// Evaluate runs one session over rules and data.
func (s *Session) Evaluate(rules []*types.Rule, data types.DataContext, opts Options) *EvaluationResult {
	start := time.Now()

	result := &EvaluationResult{
		Fired:        []*types.Rule{},
		Actions:      []NormalizedAction{},
		Explanations: []Explanation{},
	}

	active := make([]*types.Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil && r.Enabled {
			active = append(active, r)
		}
	}

	// Stable sort: equal priorities keep registry order (deterministic firing order)
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})

	for _, rule := range active {
		s.evaluateRule(rule, data, opts, result)
	}

	for _, a := range result.Actions {
		if a.Type == types.ActionCalculate && a.Value != nil {
			if result.Calculated == nil {
				result.Calculated = make(map[string]float64)
			}
			result.Calculated[a.Target] = *a.Value
		}
	}

	if s.observer != nil {
		s.observer.ObserveEvaluation(time.Since(start), len(active), len(result.Fired))
	}
	return result
}

// evaluateRule evaluates one rule and appends its outcome to result.
// A panic inside a rule is converted into a warning so the session continues.
func (s *Session) evaluateRule(rule *types.Rule, data types.DataContext, opts Options, result *EvaluationResult) {
	report := s.reporterFor(rule, result)

	defer func() {
		if r := recover(); r != nil {
			report(Warning{Kind: WarnInvalidNode, Message: fmt.Sprintf("rule evaluation failed: %v", r)})
		}
	}()

	if !evaluateNode(rule.Condition, data, 0, report) {
		return
	}

	// Build everything before appending so a failure leaves no partial output
	var actions []NormalizedAction
	if opts.TriggerActions {
		actions = normalizeActions(rule, data, report)
	}
	explanation := Explain(rule)

	result.Fired = append(result.Fired, rule)
	result.Actions = append(result.Actions, actions...)
	result.Explanations = append(result.Explanations, explanation)

	if s.observer != nil {
		s.observer.ObserveRuleFired(rule.ID)
	}
}

// reporterFor returns a reporter that tags warnings with the rule, logs and collects them.
func (s *Session) reporterFor(rule *types.Rule, result *EvaluationResult) reporter {
	return func(w Warning) {
		if w.RuleID == "" {
			w.RuleID = rule.ID
		}
		result.Warnings = append(result.Warnings, w)
		s.logger.Warn().
			Str("kind", string(w.Kind)).
			Str("rule_id", string(w.RuleID)).
			Str("condition_id", w.ConditionID).
			Str("field", w.Field).
			Msg(w.Message)
		if s.observer != nil {
			s.observer.ObserveWarning(w.Kind)
		}
	}
}
