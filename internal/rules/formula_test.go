package rules

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/formkeeper/internal/types"
)

const bmiFormula = "{vitals.weight} / (({vitals.height}/100) * ({vitals.height}/100))"

func TestCalculate_BMI(t *testing.T) {
	data := types.DataContext{"vitals": map[string]any{"weight": float64(70), "height": float64(175)}}

	got, err := Calculate(bmiFormula, data)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if math.Abs(got-22.86) > 0.01 {
		t.Errorf("Calculate() = %v, want ~22.86", got)
	}
}

func TestCalculate_StringInputs(t *testing.T) {
	data := types.DataContext{"vitals": map[string]any{"weight": "70", "height": " 175 "}}

	got, err := Calculate(bmiFormula, data)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if math.Abs(got-22.857) > 0.001 {
		t.Errorf("Calculate() = %v, want ~22.857", got)
	}
}

func TestCalculate_Arithmetic(t *testing.T) {
	data := types.DataContext{"a": float64(6), "b": 3, "nested": map[string]any{"c": float64(0.5)}}

	tests := []struct {
		formula string
		want    float64
	}{
		{formula: "1 + 2", want: 3},
		{formula: "2 + 3 * 4", want: 14},
		{formula: "(2 + 3) * 4", want: 20},
		{formula: "10 - 4 - 3", want: 3},
		{formula: "{a} / {b}", want: 2},
		{formula: "-{a} + 1", want: -5},
		{formula: "--{a}", want: 6},
		{formula: "{nested.c} * 4", want: 2},
		{formula: ".5 + 1.5e1", want: 15.5},
		{formula: "  {a}  ", want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			got, err := Calculate(tt.formula, data)
			if err != nil {
				t.Fatalf("Calculate(%q) error = %v", tt.formula, err)
			}
			if got != tt.want {
				t.Errorf("Calculate(%q) = %v, want %v", tt.formula, got, tt.want)
			}
		})
	}
}

func TestCalculate_Errors(t *testing.T) {
	data := types.DataContext{
		"weight": float64(70),
		"zero":   float64(0),
		"text":   "seventy",
		"empty":  nil,
		"flag":   true,
	}

	tests := []struct {
		name    string
		formula string
		wantErr error
	}{
		{name: "missing placeholder", formula: "{height} * 2", wantErr: types.ErrFieldNotFound},
		{name: "non-numeric placeholder", formula: "{text} + 1", wantErr: types.ErrNonNumericValue},
		{name: "null placeholder", formula: "{empty} + 1", wantErr: types.ErrNonNumericValue},
		{name: "bool placeholder", formula: "{flag} + 1", wantErr: types.ErrNonNumericValue},
		{name: "division by zero", formula: "{weight} / {zero}", wantErr: types.ErrDivisionByZero},
		{name: "literal division by zero", formula: "1 / (2 - 2)", wantErr: types.ErrDivisionByZero},
		{name: "empty formula", formula: "   ", wantErr: types.ErrFormulaSyntax},
		{name: "dangling operator", formula: "{weight} +", wantErr: types.ErrFormulaSyntax},
		{name: "unbalanced parenthesis", formula: "(1 + 2", wantErr: types.ErrFormulaSyntax},
		{name: "unterminated placeholder", formula: "{weight + 1", wantErr: types.ErrFormulaSyntax},
		{name: "empty placeholder", formula: "{} + 1", wantErr: types.ErrFormulaSyntax},
		{name: "unknown token", formula: "{weight} ^ 2", wantErr: types.ErrFormulaSyntax},
		{name: "adjacent operands", formula: "1 2", wantErr: types.ErrFormulaSyntax},
		{name: "no code execution", formula: "alert(1)", wantErr: types.ErrFormulaSyntax},
		{name: "lone dot", formula: ".", wantErr: types.ErrFormulaSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calculate(tt.formula, data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Calculate(%q) error = %v, wantErr %v", tt.formula, err, tt.wantErr)
			}
		})
	}
}

func TestCalculate_NonFinite(t *testing.T) {
	data := types.DataContext{"huge": float64(1e308)}
	_, err := Calculate("{huge} * 10", data)
	if !errors.Is(err, types.ErrNonFiniteResult) {
		t.Errorf("Calculate() error = %v, want ErrNonFiniteResult", err)
	}
}

func TestParseFormula_Fields(t *testing.T) {
	f, err := ParseFormula("{a} + {b.c} * {a}")
	if err != nil {
		t.Fatalf("ParseFormula() error = %v", err)
	}
	want := []string{"a", "b.c"}
	if !reflect.DeepEqual(f.Fields, want) {
		t.Errorf("Fields = %v, want %v", f.Fields, want)
	}
}

// Property-based test: formulas over integer fields agree with Go arithmetic
func TestCalculate_PropertyMatchesArithmetic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("(a + b) * c - a", prop.ForAll(
		func(a, b, c int) bool {
			data := types.DataContext{"a": float64(a), "b": float64(b), "c": float64(c)}
			got, err := Calculate("({a} + {b}) * {c} - {a}", data)
			return err == nil && got == float64((a+b)*c-a)
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(-1000, 1000),
		gen.IntRange(-1000, 1000),
	))

	properties.Property("missing inputs always abort", prop.ForAll(
		func(a int) bool {
			_, err := Calculate("{a} + {b}", types.DataContext{"a": float64(a)})
			return errors.Is(err, types.ErrFieldNotFound)
		},
		gen.Int(),
	))

	properties.TestingRun(t)
}
