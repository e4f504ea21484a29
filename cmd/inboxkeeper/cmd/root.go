package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/solatis/inboxkeeper/internal/core/config"
	"github.com/solatis/inboxkeeper/internal/core/logging"
)

// Version is the release version reported by the CLI.
const Version = "0.1.0"

var (
	configFile string
	envFile    string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:     "inboxkeeper",
	Short:   "InboxKeeper mail rule engine and organizer",
	Long:    `InboxKeeper applies prioritized rules to stored mail, dispatches the selected actions and keeps the links it finds.`,
	Version: Version,

	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		_, err := logging.Initialize(cmd.ErrOrStderr(), logLevel, logFormat)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before reading IK_* variables")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads configuration and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	slog.Debug("configuration loaded",
		"config_file", configFile,
		"rules_file", cfg.Organizer.RulesFile,
		"mailbox_dir", cfg.Organizer.MailboxDir,
	)
	return cfg, nil
}
