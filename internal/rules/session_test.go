package rules

import (
	"io"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"github.com/solatis/formkeeper/internal/types"
)

func clinicalRules() []*types.Rule {
	return []*types.Rule{
		{
			ID:        "show-gynecology-female",
			Name:      "Show Gynecology for Female",
			Enabled:   true,
			Priority:  10,
			Condition: cond("patient.gender", types.OpEquals, "female"),
			Actions:   []types.Action{{ID: "a1", Type: types.ActionShow, Target: "section-menstrual"}},
			Category:  "visibility",
		},
		{
			ID:        "pediatric-dosing-warning",
			Name:      "Pediatric Dosing Warning",
			Enabled:   true,
			Priority:  5,
			Condition: cond("patient.age", types.OpLessThan, float64(12)),
			Actions: []types.Action{{
				ID: "a2", Type: types.ActionShowWarning, Target: "medications",
				Message: "Patient is under 12: verify weight-based dosing",
			}},
			Category: "safety",
			Tags:     []string{"pediatric"},
		},
		{
			ID:        "calculate-bmi",
			Name:      "Calculate BMI",
			Enabled:   true,
			Priority:  20,
			Condition: types.And(cond("vitals.weight", types.OpIsNotEmpty, nil), cond("vitals.height", types.OpIsNotEmpty, nil)),
			Actions:   []types.Action{{ID: "a3", Type: types.ActionCalculate, Target: "vitals.bmi", Formula: bmiFormula}},
			Category:  "calculation",
		},
		{
			ID:        "allergy-alert",
			Name:      "Allergy Alert",
			Enabled:   true,
			Priority:  0,
			Condition: cond("patient.allergies", types.OpIsNotEmpty, nil),
			Actions:   []types.Action{{ID: "a4", Type: types.ActionShowAlert, Target: "allergies", Message: "Patient has documented allergies"}},
			Category:  "safety",
		},
	}
}

func TestEvaluate_GynecologyScenario(t *testing.T) {
	data := types.DataContext{"patient": map[string]any{"gender": "female"}}

	result := Evaluate(clinicalRules(), data, DefaultOptions())

	if !reflect.DeepEqual(result.FiredIDs(), []types.RuleID{"show-gynecology-female"}) {
		t.Fatalf("fired = %v, want [show-gynecology-female]", result.FiredIDs())
	}
	if len(result.Actions) != 1 {
		t.Fatalf("len(actions) = %d, want 1", len(result.Actions))
	}
	a := result.Actions[0]
	if a.Type != types.ActionShow || a.Target != "section-menstrual" {
		t.Errorf("action = %+v, want show section-menstrual", a)
	}
	if a.RuleID != "show-gynecology-female" || a.RuleName != "Show Gynecology for Female" {
		t.Errorf("action not tagged with its rule: %+v", a)
	}
}

func TestEvaluate_PediatricScenario(t *testing.T) {
	data := types.DataContext{"patient": map[string]any{"age": 10}}

	result := Evaluate(clinicalRules(), data, DefaultOptions())

	if !reflect.DeepEqual(result.FiredIDs(), []types.RuleID{"pediatric-dosing-warning"}) {
		t.Fatalf("fired = %v, want [pediatric-dosing-warning]", result.FiredIDs())
	}
	a := result.Actions[0]
	if a.Type != types.ActionShowWarning || a.Target != "medications" {
		t.Errorf("action = %+v, want showWarning on medications", a)
	}
	if a.Message == "" {
		t.Errorf("showWarning action has no message")
	}
}

func TestEvaluate_BMIScenario(t *testing.T) {
	data := types.DataContext{"vitals": map[string]any{"weight": float64(70), "height": float64(175)}}

	result := Evaluate(clinicalRules(), data, DefaultOptions())

	if !reflect.DeepEqual(result.FiredIDs(), []types.RuleID{"calculate-bmi"}) {
		t.Fatalf("fired = %v, want [calculate-bmi]", result.FiredIDs())
	}
	a := result.Actions[0]
	if a.Skipped || a.Value == nil {
		t.Fatalf("calculate skipped: %s", a.SkipReason)
	}
	if math.Abs(*a.Value-22.9) > 0.05 {
		t.Errorf("bmi = %v, want ~22.9", *a.Value)
	}
	if got := result.Calculated["vitals.bmi"]; got != *a.Value {
		t.Errorf("calculated[vitals.bmi] = %v, want %v", got, *a.Value)
	}

	next, _ := ApplyActions(data, result.Actions)
	bmi := ResolvePath(next, "vitals.bmi")
	if !bmi.Found || bmi.Value != *a.Value {
		t.Errorf("vitals.bmi after apply = %+v, want %v", bmi, *a.Value)
	}
	if ResolvePath(data, "vitals.bmi").Found {
		t.Errorf("ApplyActions mutated the input data")
	}
}

func TestEvaluate_AllergyScenarioEmptyData(t *testing.T) {
	result := Evaluate(clinicalRules(), types.DataContext{}, DefaultOptions())

	if len(result.Fired) != 0 {
		t.Errorf("fired = %v, want none", result.FiredIDs())
	}
	if len(result.Actions) != 0 || len(result.Explanations) != 0 {
		t.Errorf("actions/explanations not empty: %+v", result)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("missing fields produced warnings: %+v", result.Warnings)
	}
}

func TestEvaluate_PriorityOrder(t *testing.T) {
	data := types.DataContext{
		"patient": map[string]any{"gender": "female", "age": float64(10), "allergies": []any{"latex"}},
	}

	result := Evaluate(clinicalRules(), data, DefaultOptions())

	want := []types.RuleID{"allergy-alert", "pediatric-dosing-warning", "show-gynecology-female"}
	if !reflect.DeepEqual(result.FiredIDs(), want) {
		t.Fatalf("fired = %v, want %v", result.FiredIDs(), want)
	}
	for i, a := range result.Actions {
		if a.RuleID != want[i] {
			t.Errorf("actions[%d].RuleID = %s, want %s", i, a.RuleID, want[i])
		}
	}
	for i, e := range result.Explanations {
		if e.RuleID != want[i] {
			t.Errorf("explanations[%d].RuleID = %s, want %s", i, e.RuleID, want[i])
		}
	}
}

func TestEvaluate_EqualPriorityKeepsOrder(t *testing.T) {
	always := types.And()
	rules := []*types.Rule{
		{ID: "b", Name: "B", Enabled: true, Priority: 1, Condition: always},
		{ID: "a", Name: "A", Enabled: true, Priority: 1, Condition: always},
		{ID: "c", Name: "C", Enabled: true, Priority: 0, Condition: always},
	}

	result := Evaluate(rules, types.DataContext{}, DefaultOptions())

	want := []types.RuleID{"c", "b", "a"}
	if !reflect.DeepEqual(result.FiredIDs(), want) {
		t.Errorf("fired = %v, want %v", result.FiredIDs(), want)
	}
}

func TestEvaluate_DisabledRuleSkipped(t *testing.T) {
	rules := clinicalRules()
	data := types.DataContext{"patient": map[string]any{"gender": "female"}}

	rules[0].Enabled = false
	result := Evaluate(rules, data, DefaultOptions())
	if len(result.Fired) != 0 {
		t.Errorf("disabled rule fired: %v", result.FiredIDs())
	}
}

func TestEvaluate_TriggerActionsFalse(t *testing.T) {
	data := types.DataContext{"patient": map[string]any{"gender": "female"}}

	result := Evaluate(clinicalRules(), data, Options{TriggerActions: false})

	if len(result.Fired) != 1 {
		t.Fatalf("fired = %v, want one rule", result.FiredIDs())
	}
	if len(result.Actions) != 0 {
		t.Errorf("actions = %+v, want none", result.Actions)
	}
	if len(result.Explanations) != 1 {
		t.Errorf("explanations = %d, want 1", len(result.Explanations))
	}
}

func TestEvaluate_SkippedCalculation(t *testing.T) {
	rules := []*types.Rule{{
		ID: "bmi", Name: "BMI", Enabled: true,
		Condition: types.And(),
		Actions: []types.Action{
			{Type: types.ActionCalculate, Target: "vitals.bmi", Formula: bmiFormula},
			{Type: types.ActionShow, Target: "vitals-section"},
		},
	}}
	data := types.DataContext{"vitals": map[string]any{"weight": float64(70)}}

	result := Evaluate(rules, data, DefaultOptions())

	if len(result.Actions) != 2 {
		t.Fatalf("len(actions) = %d, want 2", len(result.Actions))
	}
	calc := result.Actions[0]
	if !calc.Skipped || calc.Value != nil || calc.SkipReason == "" {
		t.Errorf("calculate action = %+v, want skipped with reason", calc)
	}
	if _, ok := result.Calculated["vitals.bmi"]; ok {
		t.Errorf("skipped calculation produced a value")
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Kind != WarnCalculationSkipped || result.Warnings[0].RuleID != "bmi" {
		t.Errorf("warnings = %+v, want one calculation_skipped for bmi", result.Warnings)
	}
}

func TestEvaluate_UnknownOperatorWarning(t *testing.T) {
	rules := []*types.Rule{{
		ID: "regex", Name: "Regex", Enabled: true,
		Condition: types.Leaf(types.Condition{ID: "c1", Field: "name", Operator: "matches", Value: ".*"}),
	}}

	result := Evaluate(rules, types.DataContext{"name": "x"}, DefaultOptions())

	if len(result.Fired) != 0 {
		t.Errorf("rule with unknown operator fired")
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %+v, want 1", result.Warnings)
	}
	w := result.Warnings[0]
	if w.Kind != WarnUnknownOperator || w.RuleID != "regex" || w.ConditionID != "c1" || w.Field != "name" {
		t.Errorf("warning = %+v", w)
	}
}

func TestEvaluate_NoCascading(t *testing.T) {
	rules := []*types.Rule{
		{
			ID: "calc", Name: "Calc", Enabled: true, Priority: 0,
			Condition: types.And(),
			Actions:   []types.Action{{Type: types.ActionCalculate, Target: "score", Formula: "1 + 1"}},
		},
		{
			ID: "on-score", Name: "On score", Enabled: true, Priority: 1,
			Condition: cond("score", types.OpEquals, float64(2)),
			Actions:   []types.Action{{Type: types.ActionShow, Target: "x"}},
		},
	}

	first := Evaluate(rules, types.DataContext{}, DefaultOptions())
	if !reflect.DeepEqual(first.FiredIDs(), []types.RuleID{"calc"}) {
		t.Fatalf("first pass fired = %v, want [calc]", first.FiredIDs())
	}

	next, _ := ApplyActions(types.DataContext{}, first.Actions)
	second := Evaluate(rules, next, DefaultOptions())
	if !reflect.DeepEqual(second.FiredIDs(), []types.RuleID{"calc", "on-score"}) {
		t.Errorf("second pass fired = %v, want [calc on-score]", second.FiredIDs())
	}
}

func TestEvaluate_DoesNotMutateInputs(t *testing.T) {
	rules := clinicalRules()
	before := make([]*types.Rule, len(rules))
	for i, r := range rules {
		before[i] = r.Clone()
	}
	data := types.DataContext{"vitals": map[string]any{"weight": float64(70), "height": float64(175)}}

	Evaluate(rules, data, DefaultOptions())

	for i := range rules {
		if !reflect.DeepEqual(rules[i], before[i]) {
			t.Errorf("rule %s mutated", rules[i].ID)
		}
	}
	if _, ok := data["vitals"].(map[string]any)["bmi"]; ok {
		t.Errorf("evaluation wrote into data")
	}
}

func testLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w)
}

type recordingObserver struct {
	evaluations int
	fired       []types.RuleID
	warnings    []WarningKind
}

func (o *recordingObserver) ObserveEvaluation(time.Duration, int, int) { o.evaluations++ }
func (o *recordingObserver) ObserveRuleFired(id types.RuleID)          { o.fired = append(o.fired, id) }
func (o *recordingObserver) ObserveWarning(kind WarningKind)           { o.warnings = append(o.warnings, kind) }

func TestSession_Observer(t *testing.T) {
	obs := &recordingObserver{}
	var logged strings.Builder
	session := NewSession(testLogger(&logged), obs)

	rules := append(clinicalRules(), &types.Rule{
		ID: "bad", Name: "Bad", Enabled: true, Priority: 99,
		Condition: cond("patient.gender", "startsWith", "f"),
	})
	session.Evaluate(rules, types.DataContext{"patient": map[string]any{"gender": "female"}}, DefaultOptions())

	if obs.evaluations != 1 {
		t.Errorf("evaluations = %d, want 1", obs.evaluations)
	}
	if !reflect.DeepEqual(obs.fired, []types.RuleID{"show-gynecology-female"}) {
		t.Errorf("fired = %v", obs.fired)
	}
	if !reflect.DeepEqual(obs.warnings, []WarningKind{WarnUnknownOperator}) {
		t.Errorf("warnings = %v", obs.warnings)
	}
	if !strings.Contains(logged.String(), `"rule_id":"bad"`) {
		t.Errorf("warning not logged: %s", logged.String())
	}
}

// Property-based test: evaluation is deterministic over shuffled priorities
func TestEvaluate_PropertyPriorityOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("fired rules are sorted by priority", prop.ForAll(
		func(priorities []int) bool {
			rules := make([]*types.Rule, len(priorities))
			for i, p := range priorities {
				rules[i] = &types.Rule{
					ID: types.RuleID(strings.Repeat("r", i+1)), Name: "r", Enabled: true,
					Priority: p, Condition: types.And(),
				}
			}
			result := Evaluate(rules, types.DataContext{}, DefaultOptions())
			if len(result.Fired) != len(rules) {
				return false
			}
			for i := 1; i < len(result.Fired); i++ {
				if result.Fired[i-1].Priority > result.Fired[i].Priority {
					return false
				}
			}
			again := Evaluate(rules, types.DataContext{}, DefaultOptions())
			return reflect.DeepEqual(result.FiredIDs(), again.FiredIDs())
		},
		gen.SliceOf(gen.IntRange(-3, 3)),
	))

	properties.TestingRun(t)
}
