package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/inboxkeeper/internal/core/config"
	"github.com/solatis/inboxkeeper/internal/mailbox"
	"github.com/solatis/inboxkeeper/internal/organizer"
	"github.com/solatis/inboxkeeper/internal/rules"
	"github.com/solatis/inboxkeeper/internal/types"
)

var organizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Apply the rule set to every unprocessed message in the mailbox",
	RunE:  runOrganize,
}

func init() {
	rootCmd.AddCommand(organizeCmd)
	organizeCmd.Flags().String("rules", "", "rule file (JSON, YAML or TOML)")
	organizeCmd.Flags().String("mailbox", "", "directory of .eml messages")
	organizeCmd.Flags().Int("batch-size", 0, "maximum messages organized in this run")
	organizeCmd.Flags().Bool("dry-run", false, "evaluate and log without recording or moving messages")
	organizeCmd.Flags().Bool("keep", false, "leave processed messages in place")
	organizeCmd.Flags().String("templates", "", "directory of .liquid reply templates")
}

// applyOrganizerFlags overrides configuration with explicitly set flags.
func applyOrganizerFlags(cmd *cobra.Command, cfg *config.OrganizerConfig) {
	if cmd.Flags().Changed("rules") {
		cfg.RulesFile, _ = cmd.Flags().GetString("rules")
	}
	if cmd.Flags().Changed("mailbox") {
		cfg.MailboxDir, _ = cmd.Flags().GetString("mailbox")
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	}
	if cmd.Flags().Changed("templates") {
		cfg.TemplatesDir, _ = cmd.Flags().GetString("templates")
	}
}

// loadEngine loads the rule file. A missing file yields an empty rule set.
func loadEngine(path string, logger *slog.Logger) (*rules.Engine, error) {
	rs, err := rules.LoadRuleSetOrEmpty(path)
	if err != nil {
		return nil, err
	}
	if len(rs.Rules) == 0 {
		logger.Warn("no rules loaded", "rules_file", path)
	}
	return rules.NewEngine(rs, rules.WithLogger(logger))
}

// newOrganizer builds the organizer, rendering reply_with_template from
// cfg.TemplatesDir when that directory exists.
func newOrganizer(engine *rules.Engine, cfg config.OrganizerConfig, logger *slog.Logger) *organizer.Organizer {
	opts := []organizer.Option{organizer.WithLogger(logger)}
	if cfg.TemplatesDir != "" {
		if info, err := os.Stat(cfg.TemplatesDir); err == nil && info.IsDir() {
			templates := organizer.NewTemplates(cfg.TemplatesDir)
			opts = append(opts, organizer.WithHandler(types.ActionReplyWithTemplate, organizer.ReplyHandler(templates, logger)))
		} else {
			logger.Debug("reply templates unavailable, simulating replies", "templates_dir", cfg.TemplatesDir)
		}
	}
	return organizer.New(engine, opts...)
}

func runOrganize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyOrganizerFlags(cmd, &cfg.Organizer)
	if cfg.Organizer.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", cfg.Organizer.BatchSize)
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	keep, _ := cmd.Flags().GetBool("keep")

	logger := slog.Default()
	engine, err := loadEngine(cfg.Organizer.RulesFile, logger)
	if err != nil {
		return err
	}

	dir, err := mailbox.Open(cfg.Organizer.MailboxDir,
		mailbox.WithMaxSize(cfg.Organizer.MaxEmailSizeBytes()),
		mailbox.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	runCfg := organizer.RunConfig{
		Folder:    cfg.Organizer.EmailFolder,
		BatchSize: cfg.Organizer.BatchSize,
		DryRun:    dryRun,
	}
	if !keep {
		runCfg.ProcessedFolder = cfg.Organizer.ProcessedFolder
	}

	var store organizer.Store
	if !dryRun {
		s, err := openStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	org := newOrganizer(engine, cfg.Organizer, logger)
	stats, err := organizer.NewRunner(org, store, runCfg).Run(ctx, dir)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	out := cmd.OutOrStdout()
	if err != nil {
		fmt.Fprintln(out, "interrupted, stopping after the current message")
	}
	fmt.Fprintf(out, "run %s: %d organized, %d already processed, %d actions applied, %d failed, %d links\n",
		stats.RunID, stats.Organized, stats.Skipped, stats.Applied, stats.Failed, stats.Links)
	return nil
}
