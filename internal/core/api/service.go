// Package api implements the formkeeper.v1.RuleEngine gRPC service.
package api

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

// Store persists registry mutations. Satisfied by *db.RuleStore.
type Store interface {
	Upsert(ctx context.Context, rule *types.Rule) error
	SetEnabled(ctx context.Context, id types.RuleID, enabled bool) error
	Delete(ctx context.Context, id types.RuleID) error
}

// RuleService implements RuleEngineServer over an Engine.
// Thin orchestration layer: evaluation lives in internal/rules, persistence in internal/core/db.
type RuleService struct {
	engine         *rules.Engine
	store          Store
	triggerActions bool
	onRulesChanged func(count int)
	logger         zerolog.Logger
}

var _ RuleEngineServer = (*RuleService)(nil)

// Option configures a RuleService.
type Option func(*RuleService)

// WithStore writes every registry mutation through to store.
func WithStore(store Store) Option {
	return func(s *RuleService) { s.store = store }
}

// WithTriggerActions sets the default for requests that omit triggerActions.
func WithTriggerActions(trigger bool) Option {
	return func(s *RuleService) { s.triggerActions = trigger }
}

// WithRulesChanged is called with the registry size after each successful mutation.
func WithRulesChanged(fn func(count int)) Option {
	return func(s *RuleService) { s.onRulesChanged = fn }
}

// NewRuleService creates the service.
func NewRuleService(engine *rules.Engine, logger zerolog.Logger, opts ...Option) (*RuleService, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	s := &RuleService{
		engine:         engine,
		triggerActions: true,
		logger:         logger.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RuleService) changed() {
	if s.onRulesChanged != nil {
		s.onRulesChanged(s.engine.Registry().Len())
	}
}

type ruleIDRequest struct {
	RuleID types.RuleID `json:"ruleId"`
}

func (r ruleIDRequest) validate() error {
	if r.RuleID == "" {
		return invalidArgument("ruleId is required")
	}
	return nil
}

type ruleResponse struct {
	Rule *types.Rule `json:"rule"`
}
