package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/scrape-cleaner/internal/clean"
	"github.com/sells-group/scrape-cleaner/internal/pipeline"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the active cleaning rules as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if rules, _ := cmd.Flags().GetString("rules"); rules != "" {
			cfg.Cleaner.RulesFile = rules
		}
		dc, err := pipeline.NewDataCleanerFromConfig(cfg.Cleaner)
		if err != nil {
			return eris.Wrap(err, "rules: build cleaner")
		}
		out, err := clean.MarshalRules(dc.Rules())
		if err != nil {
			return eris.Wrap(err, "rules: marshal")
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <rule-file>",
	Short: "Check a YAML rule file without cleaning anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := clean.LoadRulesFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules OK\n", args[0], len(rules))
		return nil
	},
}

func init() {
	rulesCmd.Flags().String("rules", "", "YAML rule file overriding the default rules")
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}
