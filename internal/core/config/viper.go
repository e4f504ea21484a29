package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is the dotenv file read when the caller names none.
const DefaultEnvFile = "config/config.env"

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment. Variables already set are kept. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied by the caller.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("database.url", d.DatabaseURL)
	v.SetDefault("organizer.rules_file", d.Organizer.RulesFile)
	v.SetDefault("organizer.mailbox_dir", d.Organizer.MailboxDir)
	v.SetDefault("organizer.email_folder", d.Organizer.EmailFolder)
	v.SetDefault("organizer.processed_folder", d.Organizer.ProcessedFolder)
	v.SetDefault("organizer.batch_size", d.Organizer.BatchSize)
	v.SetDefault("organizer.max_email_size_mb", d.Organizer.MaxEmailSizeMB)
	v.SetDefault("organizer.output_dir", d.Organizer.OutputDir)
	v.SetDefault("organizer.templates_dir", d.Organizer.TemplatesDir)
	v.SetDefault("api.host", d.API.Host)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.max_connections", d.API.MaxConnections)
	v.SetDefault("api.request_timeout", d.API.RequestTimeout.String())
	v.SetDefault("api.max_batch_size", d.API.MaxBatchSize)
	v.SetDefault("api.metrics_port", d.API.MetricsPort)

	// Bind environment variables with IK_ prefix
	v.SetEnvPrefix("IK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL: v.GetString("database.url"),
		Organizer: OrganizerConfig{
			RulesFile:       v.GetString("organizer.rules_file"),
			MailboxDir:      v.GetString("organizer.mailbox_dir"),
			EmailFolder:     v.GetString("organizer.email_folder"),
			ProcessedFolder: v.GetString("organizer.processed_folder"),
			BatchSize:       v.GetInt("organizer.batch_size"),
			MaxEmailSizeMB:  v.GetInt("organizer.max_email_size_mb"),
			OutputDir:       v.GetString("organizer.output_dir"),
			TemplatesDir:    v.GetString("organizer.templates_dir"),
		},
		API: APIConfig{
			Host:           v.GetString("api.host"),
			Port:           v.GetInt("api.port"),
			MaxConnections: v.GetInt("api.max_connections"),
			RequestTimeout: v.GetDuration("api.request_timeout"),
			MaxBatchSize:   v.GetInt("api.max_batch_size"),
			MetricsPort:    v.GetInt("api.metrics_port"),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks port ranges and positive sizes, limits and timeouts.
func Validate(cfg *Config) error {
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.API.Port)
	}
	if cfg.API.MetricsPort < 0 || cfg.API.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port must be between 0 and 65535, got %d", cfg.API.MetricsPort)
	}
	if cfg.API.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.API.MaxConnections)
	}
	if cfg.API.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.API.RequestTimeout)
	}
	if cfg.API.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", cfg.API.MaxBatchSize)
	}
	if cfg.Organizer.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", cfg.Organizer.BatchSize)
	}
	if cfg.Organizer.MaxEmailSizeMB <= 0 {
		return fmt.Errorf("max_email_size_mb must be positive, got %d", cfg.Organizer.MaxEmailSizeMB)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use IK_HMAC_SECRET environment variable)")
	}
	return nil
}
