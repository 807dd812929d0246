package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/formkeeper/internal/bundle"
	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate the rule set against a form data file",
	Long: `Evaluate reads a data context (JSON or YAML, "-" for stdin), runs one
evaluation and prints the result as JSON. Rules come from --bundle when given,
otherwise from the rule store or the configured bundle.`,
	PreRunE: bindFlags(map[string]string{"rules.bundle_path": "bundle"}),
	RunE:    runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	flags := evaluateCmd.Flags()
	flags.String("data", "", "form data file (JSON or YAML, - for stdin)")
	flags.String("bundle", "", "rule bundle file")
	flags.Bool("no-actions", false, "report fired rules without actions")
	flags.Bool("apply", false, "apply the actions and include the resulting data and form state")
	_ = evaluateCmd.MarkFlagRequired("data")
}

type evaluateOutput struct {
	FiredRules   []types.RuleID           `json:"firedRules"`
	Actions      []rules.NormalizedAction `json:"actions"`
	Explanations []rules.Explanation      `json:"explanations"`
	Calculated   map[string]float64       `json:"calculated,omitempty"`
	Warnings     []rules.Warning          `json:"warnings,omitempty"`
	Data         types.DataContext        `json:"data,omitempty"`
	FormState    rules.FormState          `json:"formState,omitempty"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	dataPath, _ := cmd.Flags().GetString("data")
	noActions, _ := cmd.Flags().GetBool("no-actions")
	apply, _ := cmd.Flags().GetBool("apply")

	data, err := readData(dataPath, cmd.InOrStdin())
	if err != nil {
		return err
	}

	var registry *rules.Registry
	if cmd.Flags().Changed("bundle") {
		bundled, err := bundle.Load(e.cfg.Rules.BundlePath)
		if err != nil {
			return err
		}
		if registry, err = rules.NewRegistry(bundled...); err != nil {
			return fmt.Errorf("bundle rejected: %w", err)
		}
	} else if registry, err = e.loadRegistry(cmd.Context(), false); err != nil {
		return err
	}

	engine := rules.NewEngine(registry, e.logger, nil)
	opts := rules.Options{TriggerActions: e.cfg.Rules.TriggerActions && !noActions}
	result := engine.Evaluate(data, opts)

	out := evaluateOutput{
		FiredRules:   result.FiredIDs(),
		Actions:      result.Actions,
		Explanations: result.Explanations,
		Calculated:   result.Calculated,
		Warnings:     result.Warnings,
	}
	if apply {
		out.Data, out.FormState = rules.ApplyActions(data, result.Actions)
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

// readData decodes a data context. YAML is a superset of JSON, and the
// round trip through encoding/json gives the same value shapes as gRPC input.
func readData(path string, stdin io.Reader) (types.DataContext, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	tree, err := bundle.DecodeYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse data: %w", err)
	}
	if tree == nil {
		return types.DataContext{}, nil
	}
	normalized, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize data: %w", err)
	}
	var data types.DataContext
	if err := json.Unmarshal(normalized, &data); err != nil {
		return nil, fmt.Errorf("data must be an object: %w", err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
