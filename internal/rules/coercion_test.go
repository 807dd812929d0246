package rules

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/formkeeper/internal/types"
)

func TestParseFloat(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
	}{
		{name: "float64", input: float64(70.5), expected: 70.5},
		{name: "int from yaml", input: 3, expected: 3},
		{name: "int64", input: int64(-4), expected: -4},
		{name: "json number", input: json.Number("4.5"), expected: 4.5},
		{name: "numeric string", input: "70", expected: 70},
		{name: "leading whitespace", input: "  12", expected: 12},
		{name: "numeric prefix", input: "12kg", expected: 12},
		{name: "decimal prefix", input: "1.2.3", expected: 1.2},
		{name: "leading dot", input: ".5", expected: 0.5},
		{name: "exponent", input: "1e3", expected: 1000},
		{name: "dangling exponent", input: "1e", expected: 1},
		{name: "negative", input: "-7.25", expected: -7.25},
		{name: "single element array", input: []any{"5"}, expected: 5},
		{name: "multi element array", input: []any{float64(1), float64(2)}, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFloat(tt.input)
			if got != tt.expected {
				t.Errorf("ParseFloat(%#v) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseFloat_NaN(t *testing.T) {
	inputs := []any{nil, true, false, "", "abc", "kg12", ".", "-", map[string]any{}, []any{}}
	for _, in := range inputs {
		if got := ParseFloat(in); !math.IsNaN(got) {
			t.Errorf("ParseFloat(%#v) = %v, expected NaN", in, got)
		}
	}
}

func TestParseFloat_Infinity(t *testing.T) {
	if got := ParseFloat("Infinity"); !math.IsInf(got, 1) {
		t.Errorf("ParseFloat(Infinity) = %v, expected +Inf", got)
	}
	if got := ParseFloat("-Infinity and beyond"); !math.IsInf(got, -1) {
		t.Errorf("ParseFloat(-Infinity...) = %v, expected -Inf", got)
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
		wantErr  error
	}{
		{name: "float64", input: float64(70), expected: 70},
		{name: "int", input: 175, expected: 175},
		{name: "numeric string", input: "70", expected: 70},
		{name: "padded string", input: " 1.75 ", expected: 1.75},
		{name: "unit suffix", input: "12kg", wantErr: types.ErrNonNumericValue},
		{name: "empty string", input: "", wantErr: types.ErrNonNumericValue},
		{name: "whitespace", input: "   ", wantErr: types.ErrNonNumericValue},
		{name: "bool", input: true, wantErr: types.ErrNonNumericValue},
		{name: "null", input: nil, wantErr: types.ErrNonNumericValue},
		{name: "array", input: []any{float64(1)}, wantErr: types.ErrNonNumericValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToNumber(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ToNumber(%#v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr == nil && got != tt.expected {
				t.Errorf("ToNumber(%#v) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStrictEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "same string", a: "female", b: "female", want: true},
		{name: "different string", a: "female", b: "Female", want: false},
		{name: "int and float", a: 5, b: float64(5), want: true},
		{name: "int64 and int", a: int64(10), b: 10, want: true},
		{name: "string and number", a: "5", b: float64(5), want: false},
		{name: "bool", a: true, b: true, want: true},
		{name: "bool and string", a: true, b: "true", want: false},
		{name: "nil and nil", a: nil, b: nil, want: true},
		{name: "nil and empty string", a: nil, b: "", want: false},
		{name: "empty string and nil", a: "", b: nil, want: false},
		{name: "zero and false", a: float64(0), b: false, want: false},
		{name: "NaN", a: math.NaN(), b: math.NaN(), want: false},
		{name: "arrays never equal", a: []any{"a"}, b: []any{"a"}, want: false},
		{name: "maps never equal", a: map[string]any{}, b: map[string]any{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StrictEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("StrictEqual(%#v, %#v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestIsEmptyValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "nil", value: nil, want: true},
		{name: "empty string", value: "", want: true},
		{name: "false", value: false, want: true},
		{name: "zero", value: float64(0), want: true},
		{name: "int zero", value: 0, want: true},
		{name: "NaN", value: math.NaN(), want: true},
		{name: "empty array", value: []any{}, want: true},
		{name: "empty string slice", value: []string{}, want: true},
		{name: "whitespace string", value: " ", want: false},
		{name: "text", value: "none", want: false},
		{name: "true", value: true, want: false},
		{name: "number", value: float64(-1), want: false},
		{name: "array with element", value: []any{nil}, want: false},
		{name: "empty object", value: map[string]any{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEmptyValue(tt.value); got != tt.want {
				t.Errorf("IsEmptyValue(%#v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

// Property-based test: numeric strings round-trip through both numeric modes
func TestCoercion_PropertyNumericStrings(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ParseFloat and ToNumber agree on integer strings", prop.ForAll(
		func(n int64) bool {
			s := strconv.FormatInt(n, 10)
			strict, err := ToNumber(s)
			if err != nil {
				return false
			}
			return strict == ParseFloat(s) && strict == float64(n)
		},
		gen.Int64Range(-1_000_000, 1_000_000),
	))

	properties.Property("StrictEqual is symmetric", prop.ForAll(
		func(a, b any) bool {
			return StrictEqual(a, b) == StrictEqual(b, a)
		},
		gen.OneConstOf("", "a", "1", float64(0), 1, float64(1), true, false),
		gen.OneConstOf("", "a", "1", float64(0), 1, float64(1), true, false),
	))

	properties.TestingRun(t)
}
