package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective exclusion and alias rules",
	Long: `Print the rule set the export command would use, after merging the
rules section of the config file over the built-in defaults. The output is
valid YAML and can be pasted into a config file.`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(map[string]any{"rules": cfg.RuleSet()})
	if err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
