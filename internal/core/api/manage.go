package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Rule management handlers.
 *
 * The registry is changed first (it validates and assigns missing ids), then
 * the result is written to the store when one is configured. A failed store
 * write restores the previous registry state and returns UNAVAILABLE, so the
 * in-memory set never drifts from what a restart would load.
 */

// ExplainRule renders a rule as text without evaluating it.
//
// Request:  {ruleId}
// Response: {ruleId, ruleName, conditionText, actionTexts, explanation}
func (s *RuleService) ExplainRule(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ruleIDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	explanation, err := s.engine.GetRuleExplanation(req.RuleID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(explanation)
}

type listRulesRequest struct {
	Category string `json:"category"`
	Tag      string `json:"tag"`
}

// ListRules returns rules in registry order.
//
// Request:  {category?, tag?} (category wins when both are set)
// Response: {rules: [...]}
func (s *RuleService) ListRules(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listRulesRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	registry := s.engine.Registry()
	var list []*types.Rule
	switch {
	case req.Category != "":
		list = registry.ByCategory(req.Category)
	case req.Tag != "":
		list = registry.ByTag(req.Tag)
	default:
		list = registry.List()
	}
	return encode(map[string]any{"rules": list})
}

// UpsertRule creates a rule or replaces the one with the same id in place.
// A rule without an id gets a generated one; a missing "enabled" means enabled.
//
// Request:  {rule: {...}}
// Response: {rule: stored}
func (s *RuleService) UpsertRule(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	rule, err := decodeUpsert(in)
	if err != nil {
		return nil, err
	}

	registry := s.engine.Registry()
	var previous *types.Rule
	if rule.ID != "" {
		if prev, err := registry.Get(rule.ID); err == nil {
			previous = prev
		}
	}

	stored, err := registry.Replace(rule)
	if err != nil {
		return nil, toStatus(err)
	}

	if s.store != nil {
		if err := s.store.Upsert(ctx, stored); err != nil {
			s.rollbackUpsert(stored.ID, previous)
			return nil, s.storeFailure(stored.ID, err)
		}
	}

	s.logger.Info().Str("rule_id", string(stored.ID)).Bool("created", previous == nil).Msg("rule upserted")
	s.changed()
	return encode(ruleResponse{Rule: stored})
}

func decodeUpsert(in *structpb.Struct) (*types.Rule, error) {
	raw, ok := in.AsMap()["rule"].(map[string]any)
	if !ok {
		return nil, invalidArgument("rule is required")
	}
	if _, ok := raw["enabled"]; !ok {
		raw["enabled"] = true
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, invalidArgument("malformed rule: %v", err)
	}
	var rule types.Rule
	if err := json.Unmarshal(b, &rule); err != nil {
		return nil, invalidArgument("malformed rule: %v", err)
	}
	return &rule, nil
}

func (s *RuleService) rollbackUpsert(id types.RuleID, previous *types.Rule) {
	registry := s.engine.Registry()
	var err error
	if previous != nil {
		_, err = registry.Replace(previous)
	} else {
		err = registry.Delete(id)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("rule_id", string(id)).Msg("failed to roll back registry after store error")
	}
}

type toggleRuleRequest struct {
	RuleID  types.RuleID `json:"ruleId"`
	Enabled *bool        `json:"enabled"`
}

// ToggleRule flips a rule's enabled flag, or sets it when enabled is given.
//
// Request:  {ruleId, enabled?: bool}
// Response: {rule: updated}
func (s *RuleService) ToggleRule(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req toggleRuleRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := (ruleIDRequest{RuleID: req.RuleID}).validate(); err != nil {
		return nil, err
	}

	registry := s.engine.Registry()
	var updated *types.Rule
	var err error
	if req.Enabled != nil {
		updated, err = registry.SetEnabled(req.RuleID, *req.Enabled)
	} else {
		updated, err = registry.Toggle(req.RuleID)
	}
	if err != nil {
		return nil, toStatus(err)
	}

	if s.store != nil {
		if err := s.store.SetEnabled(ctx, updated.ID, updated.Enabled); err != nil {
			if _, rerr := registry.SetEnabled(updated.ID, !updated.Enabled); rerr != nil {
				s.logger.Error().Err(rerr).Str("rule_id", string(updated.ID)).Msg("failed to roll back registry after store error")
			}
			return nil, s.storeFailure(updated.ID, err)
		}
	}

	s.logger.Info().Str("rule_id", string(updated.ID)).Bool("enabled", updated.Enabled).Msg("rule toggled")
	s.changed()
	return encode(ruleResponse{Rule: updated})
}

// DeleteRule removes a rule from the registry and the store.
//
// Request:  {ruleId}
// Response: {deleted: true}
func (s *RuleService) DeleteRule(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ruleIDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	registry := s.engine.Registry()
	if _, err := registry.Get(req.RuleID); err != nil {
		return nil, toStatus(err)
	}

	// Store first: a rule that is still persisted must stay in memory too.
	// A stored copy that is already gone is fine.
	if s.store != nil {
		if err := s.store.Delete(ctx, req.RuleID); err != nil && !errors.Is(err, types.ErrRuleNotFound) {
			return nil, s.storeFailure(req.RuleID, err)
		}
	}
	if err := registry.Delete(req.RuleID); err != nil {
		return nil, toStatus(err)
	}

	s.logger.Info().Str("rule_id", string(req.RuleID)).Msg("rule deleted")
	s.changed()
	return encode(map[string]any{"deleted": true})
}

func (s *RuleService) storeFailure(id types.RuleID, err error) error {
	s.logger.Error().Err(err).Str("rule_id", string(id)).Msg("rule store write failed")
	return toStatus(fmt.Errorf("%w: %v", errStore, err))
}
