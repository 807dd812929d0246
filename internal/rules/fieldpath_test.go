package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/formkeeper/internal/types"
)

func patientData() types.DataContext {
	return types.DataContext{
		"patient": map[string]any{
			"gender": "female",
			"age":    float64(34),
			"vitals": map[string]any{
				"weight": float64(70),
				"height": float64(175),
			},
			"notes": nil,
		},
		"medications": []any{
			map[string]any{"name": "aspirin", "dose": "100mg"},
			map[string]any{"name": "metformin"},
		},
		"codes":  []string{"I10", "E11"},
		"labels": map[string]string{"ward": "B"},
	}
}

// Test normal path resolution cases
func TestResolvePath_Normal(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected any
	}{
		{name: "top-level key", path: "patient.gender", expected: "female"},
		{name: "nested object traversal", path: "patient.vitals.weight", expected: float64(70)},
		{name: "array index access", path: "medications.0.name", expected: "aspirin"},
		{name: "second array element", path: "medications.1.name", expected: "metformin"},
		{name: "typed string slice", path: "codes.1", expected: "E11"},
		{name: "typed string map", path: "labels.ward", expected: "B"},
	}

	data := patientData()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ResolvePath(data, tt.path)
			if !result.Found {
				t.Fatalf("ResolvePath(%q) Found = false, want true", tt.path)
			}
			if result.Value != tt.expected {
				t.Errorf("ResolvePath(%q) Value = %v, expected %v", tt.path, result.Value, tt.expected)
			}
		})
	}
}

func TestResolvePath_NullIsFound(t *testing.T) {
	result := ResolvePath(patientData(), "patient.notes")
	if !result.Found {
		t.Fatalf("explicit null: Found = false, want true")
	}
	if result.Value != nil {
		t.Errorf("explicit null: Value = %v, want nil", result.Value)
	}
}

// Test paths that resolve to the missing sentinel
func TestResolvePath_Missing(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "absent key", path: "patient.allergies"},
		{name: "absent top-level key", path: "encounter"},
		{name: "null intermediate", path: "patient.notes.text"},
		{name: "scalar intermediate", path: "patient.gender.code"},
		{name: "index out of range", path: "medications.5.name"},
		{name: "negative index", path: "medications.-1.name"},
		{name: "non-numeric index", path: "medications.first.name"},
		{name: "absent key in element", path: "medications.1.dose"},
		{name: "empty path", path: ""},
		{name: "typed map absent key", path: "labels.bed"},
	}

	data := patientData()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ResolvePath(data, tt.path)
			if result.Found {
				t.Errorf("ResolvePath(%q) Found = true (value %v), want false", tt.path, result.Value)
			}
		})
	}
}

func TestResolvePath_EmptyAndNilData(t *testing.T) {
	if ResolvePath(types.DataContext{}, "a").Found {
		t.Errorf("empty data: Found = true, want false")
	}
	if ResolvePath(nil, "a.b").Found {
		t.Errorf("nil data: Found = true, want false")
	}
}

func TestParsePath_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "empty", path: "", wantErr: types.ErrEmptyFieldPath},
		{name: "whitespace", path: "   ", wantErr: types.ErrEmptyFieldPath},
		{name: "too deep", path: strings.Repeat("a.", types.MaxPathDepth) + "a", wantErr: types.ErrPathTooDeep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePath(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParsePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestParsePath_MaximumDepth(t *testing.T) {
	path := strings.TrimSuffix(strings.Repeat("a.", types.MaxPathDepth), ".")
	segments, err := ParsePath(path)
	if err != nil {
		t.Fatalf("ParsePath() error = %v, want nil", err)
	}
	if len(segments) != types.MaxPathDepth {
		t.Errorf("len(segments) = %d, want %d", len(segments), types.MaxPathDepth)
	}
}

func TestResolve_Errors(t *testing.T) {
	_, err := Resolve([]string{"patient", "missing"}, patientData())
	if !errors.Is(err, types.ErrFieldNotFound) {
		t.Errorf("Resolve() error = %v, want ErrFieldNotFound", err)
	}

	deep := make([]string, types.MaxPathDepth+1)
	for i := range deep {
		deep[i] = "a"
	}
	_, err = Resolve(deep, patientData())
	if !errors.Is(err, types.ErrPathTooDeep) {
		t.Errorf("Resolve() error = %v, want ErrPathTooDeep", err)
	}
}

// Property-based test: resolution never crashes
func TestResolvePath_PropertyNeverCrashes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	data := patientData()
	properties.Property("resolution never crashes regardless of path", prop.ForAll(
		func(path string) bool {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("ResolvePath(%q) panicked: %v", path, r)
				}
			}()
			_ = ResolvePath(data, path)
			return true
		},
		gen.AnyString(),
	))

	properties.Property("dotted segment combinations never crash", prop.ForAll(
		func(a, b, c string) bool {
			_ = ResolvePath(data, a+"."+b+"."+c)
			return true
		},
		gen.OneConstOf("patient", "medications", "codes", "labels", "0", "-1", ""),
		gen.OneConstOf("vitals", "notes", "0", "1", "99", "name", ""),
		gen.OneConstOf("weight", "name", "text", "0", ""),
	))

	properties.TestingRun(t)
}

// Property-based test: resolution is deterministic
func TestResolvePath_PropertyDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	data := patientData()
	properties.Property("same path resolves to the same scalar", prop.ForAll(
		func(path string) bool {
			r1 := ResolvePath(data, path)
			r2 := ResolvePath(data, path)
			return r1.Found == r2.Found && r1.Value == r2.Value
		},
		gen.OneConstOf("patient.gender", "patient.vitals.height", "medications.0.name",
			"patient.notes", "codes.0", "labels.ward", "nothing.here"),
	))

	properties.TestingRun(t)
}
