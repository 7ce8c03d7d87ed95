package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/healthcert/internal/rules"
	"github.com/solatis/healthcert/internal/trustlist"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect national rule-set files",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Parse a rule set and check every CertLogic expression",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesValidate,
}

var rulesSelectCmd = &cobra.Command{
	Use:   "select <file>",
	Short: "List the rule versions applicable at a date",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesSelect,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd, rulesSelectCmd)
	rulesSelectCmd.Flags().String("as-of", "", "selection date (YYYY-MM-DD or RFC 3339); empty keeps every rule")
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	rs, err := trustlist.LoadRuleSet(args[0])
	if err != nil {
		return err
	}
	engine := rules.NewEngine()
	if err := engine.Load(rs); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d rules, %d display rules, %d distinct expressions)\n",
		args[0], len(rs.Rules), len(rs.DisplayRules), engine.Len())
	return nil
}

func runRulesSelect(cmd *cobra.Command, args []string) error {
	rs, err := trustlist.LoadRuleSet(args[0])
	if err != nil {
		return err
	}

	var asOf *time.Time
	if s, _ := cmd.Flags().GetString("as-of"); s != "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		loc, err := cfg.Verifier.Location()
		if err != nil {
			return err
		}
		t, err := parseDate(s, loc)
		if err != nil {
			return err
		}
		asOf = &t
	}

	out := cmd.OutOrStdout()
	for _, r := range rules.SelectRules(rs.Rules, asOf) {
		fmt.Fprintf(out, "%-14s %-8s %s .. %s\n", r.Identifier, r.Version,
			r.ValidFrom.UTC().Format(time.RFC3339), r.ValidTo.UTC().Format(time.RFC3339))
	}
	return nil
}

// parseDate reads a calendar date as midnight in loc, or an RFC 3339 timestamp.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--as-of must be YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return t, nil
}
