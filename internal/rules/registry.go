// internal/rules/registry.go
package rules

import (
	"fmt"
	"sync"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Rule registry.
 *
 * Explicit registry object owning the rule set, keyed by id, with a separate
 * order slice so priority ties resolve the same way on every evaluation.
 * Passed by reference to whoever needs it; there is no package-level
 * singleton.
 *
 * Single-writer discipline: mutations happen through Create/Update/Replace/
 * Delete/Toggle/Load only. The RWMutex exists because the gRPC transport may
 * serve an evaluation while an operator toggles a rule; readers always get
 * deep copies, so an evaluation in flight never observes a half-applied edit.
 *
 * Unknown ids: every id-taking mutation returns ErrRuleNotFound and leaves
 * the registry unchanged.
 */

// Registry holds the mutable rule set.
type Registry struct {
	mu    sync.RWMutex
	rules map[types.RuleID]*types.Rule
	order []types.RuleID
}

// NewRegistry creates a registry seeded with rules, validated and in the given order.
func NewRegistry(rules ...*types.Rule) (*Registry, error) {
	r := &Registry{rules: make(map[types.RuleID]*types.Rule)}
	if err := r.Load(rules); err != nil {
		return nil, err
	}
	return r, nil
}

// prepare clones rule, assigns missing ids and validates it.
func prepare(rule *types.Rule) (*types.Rule, error) {
	c := rule.Clone()
	if c.ID == "" {
		c.ID = types.NewRuleID()
	}
	for i := range c.Actions {
		if c.Actions[i].ID == "" {
			c.Actions[i].ID = types.NewActionID()
		}
	}
	if err := Validate(c); err != nil {
		return nil, fmt.Errorf("rule %s: %w", c.ID, err)
	}
	return c, nil
}

// Load replaces the whole rule set atomically. On error the registry is unchanged.
func (r *Registry) Load(rules []*types.Rule) error {
	next := make(map[types.RuleID]*types.Rule, len(rules))
	order := make([]types.RuleID, 0, len(rules))
	for _, rule := range rules {
		c, err := prepare(rule)
		if err != nil {
			return err
		}
		if _, dup := next[c.ID]; dup {
			return fmt.Errorf("rule %s: %w", c.ID, types.ErrDuplicateRule)
		}
		next[c.ID] = c
		order = append(order, c.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = next
	r.order = order
	return nil
}

// Create adds a new rule at the end of registry order.
// An empty id is replaced with a generated one.
func (r *Registry) Create(rule *types.Rule) (*types.Rule, error) {
	c, err := prepare(rule)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[c.ID]; exists {
		return nil, fmt.Errorf("rule %s: %w", c.ID, types.ErrDuplicateRule)
	}
	r.rules[c.ID] = c
	r.order = append(r.order, c.ID)
	return c.Clone(), nil
}

// Get returns a copy of rule id.
func (r *Registry) Get(id types.RuleID) (*types.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, types.ErrRuleNotFound
	}
	return rule.Clone(), nil
}

// Update applies mutate to a copy of rule id and stores it if still valid.
// The id cannot be changed through mutate.
func (r *Registry) Update(id types.RuleID, mutate func(*types.Rule)) (*types.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rules[id]
	if !ok {
		return nil, types.ErrRuleNotFound
	}
	draft := current.Clone()
	mutate(draft)
	draft.ID = id

	c, err := prepare(draft)
	if err != nil {
		return nil, err
	}
	r.rules[id] = c
	return c.Clone(), nil
}

// Replace stores rule under its id, keeping its registry position when it exists
// and appending it otherwise.
func (r *Registry) Replace(rule *types.Rule) (*types.Rule, error) {
	c, err := prepare(rule)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[c.ID]; !exists {
		r.order = append(r.order, c.ID)
	}
	r.rules[c.ID] = c
	return c.Clone(), nil
}

// Delete removes rule id.
func (r *Registry) Delete(id types.RuleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[id]; !ok {
		return types.ErrRuleNotFound
	}
	delete(r.rules, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Toggle flips rule id's enabled flag. Priority and actions are untouched.
func (r *Registry) Toggle(id types.RuleID) (*types.Rule, error) {
	return r.setEnabled(id, func(current bool) bool { return !current })
}

// SetEnabled sets rule id's enabled flag.
func (r *Registry) SetEnabled(id types.RuleID, enabled bool) (*types.Rule, error) {
	return r.setEnabled(id, func(bool) bool { return enabled })
}

func (r *Registry) setEnabled(id types.RuleID, next func(bool) bool) (*types.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[id]
	if !ok {
		return nil, types.ErrRuleNotFound
	}
	rule.Enabled = next(rule.Enabled)
	return rule.Clone(), nil
}

// List returns copies of all rules in registry order.
func (r *Registry) List() []*types.Rule {
	return r.filter(func(*types.Rule) bool { return true })
}

// ByCategory returns copies of rules in category, in registry order.
func (r *Registry) ByCategory(category string) []*types.Rule {
	return r.filter(func(rule *types.Rule) bool { return rule.Category == category })
}

// ByTag returns copies of rules carrying tag, in registry order.
func (r *Registry) ByTag(tag string) []*types.Rule {
	return r.filter(func(rule *types.Rule) bool { return rule.HasTag(tag) })
}

func (r *Registry) filter(keep func(*types.Rule) bool) []*types.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Rule, 0, len(r.order))
	for _, id := range r.order {
		rule := r.rules[id]
		if keep(rule) {
			out = append(out, rule.Clone())
		}
	}
	return out
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Explain renders rule id for the explain UI.
func (r *Registry) Explain(id types.RuleID) (Explanation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return Explanation{}, types.ErrRuleNotFound
	}
	return Explain(rule), nil
}
