package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ftahirops/xgov/config"
	"github.com/ftahirops/xgov/engine"
	"github.com/ftahirops/xgov/model"
)

var (
	flagRulePattern string
	flagRuleWhen    string
	flagRuleAction  string
	flagRuleConfirm bool

	rulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "List the automation rules and check them",
		Long: `Rules act on processes whose name contains a pattern and which meet a
condition such as "background_cpu>30", "foreground_cpu>=50", "cpu>80"
or "always". Actions: lower_priority, trim, eco_throttle, contain, kill.
A kill rule needs confirm: true.`,
		Args: cobra.NoArgs,
		RunE: runRulesList,
	}

	rulesAddCmd = &cobra.Command{
		Use:   "add",
		Short: "Append a rule to the config file",
		Example: `  xgov rules add --pattern chrome --when "background_cpu>30" --action lower_priority
  xgov rules add --pattern miner --when "cpu>90" --action kill --confirm`,
		Args: cobra.NoArgs,
		RunE: runRulesAdd,
	}
)

func init() {
	f := rulesAddCmd.Flags()
	f.StringVar(&flagRulePattern, "pattern", "", "substring of the process name (empty matches all)")
	f.StringVar(&flagRuleWhen, "when", "always", "condition")
	f.StringVar(&flagRuleAction, "action", "", "action to dispatch")
	f.BoolVar(&flagRuleConfirm, "confirm", false, "standing confirmation for kill rules")
	_ = rulesAddCmd.MarkFlagRequired("action")

	rulesCmd.AddCommand(rulesAddCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesList(_ *cobra.Command, _ []string) error {
	cfg, path := loadConfig()
	if len(cfg.Rules) == 0 {
		fmt.Println("No rules configured.")
		return nil
	}
	fmt.Printf("Rules from %s\n\n", path)
	bad := 0
	for i, r := range cfg.Rules {
		status := "ok"
		if err := engine.ValidateRule(r); err != nil {
			status = "invalid: " + err.Error()
			bad++
		}
		pattern := r.Pattern
		if pattern == "" {
			pattern = "*"
		}
		fmt.Printf("%2d. %-20s %-24s %-15s %s\n", i+1, pattern, r.When, r.Action, status)
	}
	if bad > 0 {
		return fmt.Errorf("%d invalid rule(s); they never match", bad)
	}
	return nil
}

func runRulesAdd(_ *cobra.Command, _ []string) error {
	r := model.Rule{
		Pattern: flagRulePattern,
		When:    flagRuleWhen,
		Action:  flagRuleAction,
		Confirm: flagRuleConfirm,
	}
	if err := engine.ValidateRule(r); err != nil {
		return err
	}
	cfg, path := loadConfig()
	cfg.Rules = append(cfg.Rules, r)
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Added rule %d to %s\n", len(cfg.Rules), path)
	return nil
}
