package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/formkeeper/internal/bundle"
	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and manage rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in registry order",
	RunE:  runRulesList,
}

var rulesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the stored rule set with a bundle file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesImport,
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the current rule set as a bundle",
	RunE:  runRulesExport,
}

var rulesToggleCmd = &cobra.Command{
	Use:   "toggle RULE_ID",
	Short: "Flip a stored rule's enabled flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesToggle,
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete RULE_ID",
	Short: "Delete a stored rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesDelete,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesImportCmd, rulesExportCmd, rulesToggleCmd, rulesDeleteCmd)

	rulesListCmd.Flags().String("category", "", "only rules in this category")
	rulesListCmd.Flags().String("tag", "", "only rules carrying this tag")
	rulesExportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	registry, err := e.loadRegistry(cmd.Context(), false)
	if err != nil {
		return err
	}

	category, _ := cmd.Flags().GetString("category")
	tag, _ := cmd.Flags().GetString("tag")
	var list []*types.Rule
	switch {
	case category != "":
		list = registry.ByCategory(category)
	case tag != "":
		list = registry.ByTag(tag)
	default:
		list = registry.List()
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tENABLED\tCATEGORY\tTAGS")
	for _, r := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\n",
			r.ID, r.Name, r.Priority, r.Enabled, r.Category, strings.Join(r.Tags, ","))
	}
	return w.Flush()
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.openStore(cmd.Context()); err != nil {
		return err
	}

	imported, err := bundle.Load(args[0])
	if err != nil {
		return err
	}
	// Registry validation assigns ids and rejects the whole file on the first bad rule
	registry, err := rules.NewRegistry(imported...)
	if err != nil {
		return fmt.Errorf("bundle rejected: %w", err)
	}
	if err := e.store.ReplaceAll(cmd.Context(), registry.List()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d rule(s)\n", registry.Len())
	return nil
}

func runRulesExport(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	registry, err := e.loadRegistry(cmd.Context(), false)
	if err != nil {
		return err
	}
	out, err := bundle.Marshal(registry.List())
	if err != nil {
		return fmt.Errorf("failed to render bundle: %w", err)
	}

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func runRulesToggle(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.openStore(cmd.Context()); err != nil {
		return err
	}
	rule, err := e.store.Get(cmd.Context(), types.RuleID(args[0]))
	if err != nil {
		return err
	}
	if err := e.store.SetEnabled(cmd.Context(), rule.ID, !rule.Enabled); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t\n", rule.ID, !rule.Enabled)
	return nil
}

func runRulesDelete(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.openStore(cmd.Context()); err != nil {
		return err
	}
	if err := e.store.Delete(cmd.Context(), types.RuleID(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
