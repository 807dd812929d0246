package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/formkeeper/internal/core/config"
)

// Version is reported by serve at startup.
const Version = "0.1.0"

var (
	configFile string

	// settings carries defaults, FK_ environment and bound flags; config.Load reads it.
	settings = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "formkeeper",
	Short: "Formkeeper clinical form rule engine",
	Long: `Formkeeper evaluates conditional visibility and clinical rules for hospital forms:
priority-ordered rules over the form's data produce show/hide, require, warning,
alert and calculated-value actions.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.String("db-url", "", "rule store URL (sqlite://path or postgres://...)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")

	_ = settings.BindPFlag("database.url", flags.Lookup("db-url"))
	_ = settings.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = settings.BindPFlag("log.format", flags.Lookup("log-format"))
}

// bindFlags binds a command's own flags to config keys (key -> flag name).
// Bound at run time rather than in init: several commands share a key such as
// rules.bundle_path, and only the running command's flag may back it.
func bindFlags(keys map[string]string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		for key, name := range keys {
			if err := settings.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
		return nil
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
