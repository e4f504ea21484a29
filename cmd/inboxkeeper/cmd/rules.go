package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/inboxkeeper/internal/mailbox"
	"github.com/solatis/inboxkeeper/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rule files",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Compile a rule file and report diagnostics",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRulesValidate,
}

var rulesTestCmd = &cobra.Command{
	Use:   "test <message.eml>",
	Short: "Explain how the rule set treats one message",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesTest,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd, rulesTestCmd)
	rulesCmd.PersistentFlags().String("rules", "", "rule file (JSON, YAML or TOML)")
	rulesValidateCmd.Flags().Bool("strict", false, "fail when any diagnostic is reported")
}

// rulesPath resolves the rule file from args, --rules or configuration.
func rulesPath(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cmd.Flags().Changed("rules") {
		return cmd.Flags().GetString("rules")
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Organizer.RulesFile, nil
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	path, err := rulesPath(cmd, args)
	if err != nil {
		return err
	}
	rs, err := rules.LoadRuleSet(path)
	if err != nil {
		return err
	}
	// diagnostics are printed below; keep them out of the log stream
	engine, err := rules.NewEngine(rs, rules.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	diags := engine.Diagnostics()
	for _, d := range diags {
		fmt.Fprintln(out, d.String())
	}
	fmt.Fprintf(out, "%s: %d rules, %d diagnostics\n", path, len(engine.Rules()), len(diags))

	if strict, _ := cmd.Flags().GetBool("strict"); strict && len(diags) > 0 {
		return fmt.Errorf("%d diagnostics in %s", len(diags), path)
	}
	return nil
}

func runRulesTest(cmd *cobra.Command, args []string) error {
	rulesFile, err := rulesPath(cmd, nil)
	if err != nil {
		return err
	}
	engine, err := loadEngine(rulesFile, slog.Default())
	if err != nil {
		return err
	}

	msg, err := readMessage(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tRULE\tLOGIC\tCONDITIONS\tMATCHED")
	for _, t := range engine.Explain(msg.Record()) {
		conds := make([]string, len(t.Conditions))
		for i, c := range t.Conditions {
			conds[i] = fmt.Sprint(c)
		}
		matched := fmt.Sprint(t.Matched)
		if t.Stopped {
			matched += " (stop)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.Priority, t.RuleID, t.Logic, strings.Join(conds, ","), matched)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, m := range engine.Evaluate(msg.Record()) {
		fmt.Fprintf(cmd.OutOrStdout(), "action %s from %s\n", m.Action.String(), m.RuleID)
	}
	return nil
}

// readMessage parses one .eml file outside any mailbox directory.
func readMessage(path string) (*mailbox.Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return mailbox.Parse(filepath.Base(path), raw)
}
