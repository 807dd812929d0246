// internal/bundle/bundle.go
package bundle

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * Static rule bundles.
 *
 * A bundle is a YAML (or JSON, which YAML accepts) document:
 *
 *	version: 1
 *	rules:
 *	  - id: show-gynecology-female
 *	    name: Show Gynecology for Female
 *	    condition: {field: patient.gender, operator: equals, value: female}
 *	    actions: [{type: show, target: section-menstrual}]
 *
 * Decoding goes YAML -> generic tree -> JSON -> types.Rule, so the JSON shape
 * defined in internal/types (leaf vs compound node detection, camelCase keys)
 * is the single source of truth for both bundle files and the gRPC API.
 * Only JSON value shapes survive the tree step: YAML timestamps are kept as
 * the text they were written as.
 *
 * A rule without an "enabled" key is enabled. Structural validation is left to
 * the registry, which rejects the whole bundle on the first invalid rule.
 */

//go:embed defaults.yaml
var defaultBundle []byte

// ErrUnsupportedVersion indicates a bundle written for a newer format.
var ErrUnsupportedVersion = errors.New("unsupported bundle version")

// CurrentVersion is the bundle format version this build reads.
const CurrentVersion = 1

type document struct {
	Version int              `json:"version"`
	Rules   []map[string]any `json:"rules"`
}

// Parse decodes a bundle document into rules, in document order.
func Parse(data []byte) ([]*types.Rule, error) {
	tree, err := DecodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	if tree == nil {
		return []*types.Rule{}, nil
	}

	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize bundle: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if doc.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}

	rules := make([]*types.Rule, 0, len(doc.Rules))
	for i, entry := range doc.Rules {
		if _, ok := entry["enabled"]; !ok {
			entry["enabled"] = true
		}
		b, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		var rule types.Rule
		if err := json.Unmarshal(b, &rule); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, &rule)
	}
	return rules, nil
}

// DecodeYAML decodes a YAML or JSON document into a generic tree. An unquoted
// date such as 2024-01-01 stays the string "2024-01-01", which is what a form
// submits for the same value. An empty document decodes to nil.
func DecodeYAML(data []byte) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 {
		return nil, nil
	}
	timestampsAsText(&root)

	var tree any
	if err := root.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func timestampsAsText(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!timestamp" {
		n.Tag = "!!str"
	}
	for _, child := range n.Content {
		timestampsAsText(child)
	}
}

// Load reads and parses the bundle at path.
func Load(path string) ([]*types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// Default returns the embedded clinical rule bundle.
func Default() ([]*types.Rule, error) {
	return Parse(defaultBundle)
}

// LoadOrDefault loads path, or the embedded bundle when path is empty.
func LoadOrDefault(path string) ([]*types.Rule, error) {
	if path == "" {
		return Default()
	}
	return Load(path)
}

// Marshal renders rules as a bundle document.
func Marshal(rules []*types.Rule) ([]byte, error) {
	raw, err := json.Marshal(struct {
		Version int           `json:"version"`
		Rules   []*types.Rule `json:"rules"`
	}{Version: CurrentVersion, Rules: rules})
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return yaml.Marshal(tree)
}
