package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

var explainCmd = &cobra.Command{
	Use:   "explain RULE_ID",
	Short: "Print a rule's condition and actions in plain language",
	Args:  cobra.ExactArgs(1),
	RunE:  runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
	explainCmd.Flags().Bool("json", false, "print the explanation as JSON")
}

func runExplain(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	registry, err := e.loadRegistry(cmd.Context(), false)
	if err != nil {
		return err
	}

	engine := rules.NewEngine(registry, e.logger, nil)
	explanation, err := engine.GetRuleExplanation(types.RuleID(args[0]))
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), explanation)
	}
	fmt.Fprintln(cmd.OutOrStdout(), explanation.Explanation)
	return nil
}
