package api

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

type evaluateRequest struct {
	Data           types.DataContext `json:"data"`
	TriggerActions *bool             `json:"triggerActions"`
	Apply          bool              `json:"apply"`
}

type evaluateResponse struct {
	FiredRules   []types.RuleID           `json:"firedRules"`
	Actions      []rules.NormalizedAction `json:"actions"`
	Explanations []rules.Explanation      `json:"explanations"`
	Calculated   map[string]float64       `json:"calculated,omitempty"`
	Warnings     []rules.Warning          `json:"warnings,omitempty"`
	Data         types.DataContext        `json:"data,omitempty"`
	FormState    rules.FormState          `json:"formState,omitempty"`
}

// Evaluate runs the current rule set against a data context.
//
// Request:  {data: {...}, triggerActions?: bool, apply?: bool}
// Response: {firedRules, actions, explanations, calculated?, warnings?}
// With apply the response also carries the updated data and formState
// produced by replaying the actions onto a copy of data.
func (s *RuleService) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req evaluateRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}

	opts := rules.Options{TriggerActions: s.triggerActions}
	if req.TriggerActions != nil {
		opts.TriggerActions = *req.TriggerActions
	}

	result := s.engine.Evaluate(req.Data, opts)
	resp := evaluateResponse{
		FiredRules:   result.FiredIDs(),
		Actions:      result.Actions,
		Explanations: result.Explanations,
		Calculated:   result.Calculated,
		Warnings:     result.Warnings,
	}
	if req.Apply {
		resp.Data, resp.FormState = rules.ApplyActions(req.Data, result.Actions)
	}
	return encode(resp)
}

type visibilityElement struct {
	ID                    string                     `json:"id"`
	ConditionalVisibility *types.FieldVisibilityRule `json:"conditionalVisibility"`
}

func (e visibilityElement) Visibility() *types.FieldVisibilityRule {
	return e.ConditionalVisibility
}

type isVisibleRequest struct {
	Data     types.DataContext   `json:"data"`
	Element  *visibilityElement  `json:"element"`
	Elements []visibilityElement `json:"elements"`
}

// IsVisible evaluates field or section conditionalVisibility blocks.
//
// Request:  {data, element?: {id, conditionalVisibility?}, elements?: [...]}
// Response: {visible?: bool, visibleIds?: [id...]} for element / elements respectively.
func (s *RuleService) IsVisible(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req isVisibleRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Element == nil && req.Elements == nil {
		return nil, invalidArgument("element or elements is required")
	}

	resp := map[string]any{}
	if req.Element != nil {
		resp["visible"] = s.engine.IsVisible(req.Element, req.Data)
	}
	if req.Elements != nil {
		ids := []string{}
		for _, el := range req.Elements {
			if s.engine.IsVisible(el, req.Data) {
				ids = append(ids, el.ID)
			}
		}
		resp["visibleIds"] = ids
	}
	return encode(resp)
}
