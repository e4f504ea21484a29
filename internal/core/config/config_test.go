package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHMACSecrets(t *testing.T) {
	t.Run("single secret", func(t *testing.T) {
		t.Setenv("IK_HMAC_SECRET", testSecret)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
		if _, ok := secrets["0123456789abcdef0123456789abcdef"]; !ok {
			t.Errorf("secret_id not found in map")
		}
	})

	t.Run("multiple numbered secrets", func(t *testing.T) {
		t.Setenv("IK_HMAC_SECRET_1", testSecret)
		t.Setenv("IK_HMAC_SECRET_2", "fedcba9876543210fedcba9876543210:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w")

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 2 {
			t.Errorf("expected 2 secrets, got %d", len(secrets))
		}
	})

	t.Run("none configured", func(t *testing.T) {
		secrets, err := HMACSecrets()
		if err != nil || len(secrets) != 0 {
			t.Errorf("HMACSecrets() = %d secrets, %v; want 0, nil", len(secrets), err)
		}
	})

	t.Run("duplicate secret_id between single and numbered", func(t *testing.T) {
		t.Setenv("IK_HMAC_SECRET", testSecret)
		t.Setenv("IK_HMAC_SECRET_1", "0123456789abcdef0123456789abcdef:YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w")

		if _, err := HMACSecrets(); err == nil {
			t.Error("expected error for duplicate secret_id")
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		t.Setenv("IK_HMAC_SECRET", "invalid_format")

		if _, err := HMACSecrets(); err == nil {
			t.Error("expected error for invalid format")
		}
	})
}

func TestParseHMACSecretWithID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid format", testSecret, false},
		{"missing colon", "0123456789abcdef0123456789abcdef", true},
		{"invalid secret_id length", "tooshort:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w", true},
		{"non-hex chars in secret_id", "0123456789abcdefGHIJKLMNOPQRSTUV:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w", true},
		{"invalid base64", "0123456789abcdef0123456789abcdef:not-valid-base64!!!", true},
		{"secret too short", "0123456789abcdef0123456789abcdef:c2hvcnQ=", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, err := ParseHMACSecretWithID(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHMACSecretWithID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (id != "0123456789abcdef0123456789abcdef" || len(secret) < 32) {
				t.Errorf("ParseHMACSecretWithID() = %q, %d bytes", id, len(secret))
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.API.Host != "0.0.0.0" {
			t.Errorf("expected host 0.0.0.0, got %s", cfg.API.Host)
		}
		if cfg.API.Port != 50051 {
			t.Errorf("expected port 50051, got %d", cfg.API.Port)
		}
		if cfg.API.RequestTimeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", cfg.API.RequestTimeout)
		}
		if cfg.Organizer.EmailFolder != "INBOX" {
			t.Errorf("expected email_folder INBOX, got %s", cfg.Organizer.EmailFolder)
		}
		if cfg.Organizer.ProcessedFolder != "Processed" {
			t.Errorf("expected processed_folder Processed, got %s", cfg.Organizer.ProcessedFolder)
		}
		if cfg.Organizer.BatchSize != 100 {
			t.Errorf("expected batch_size 100, got %d", cfg.Organizer.BatchSize)
		}
		if cfg.Organizer.MaxEmailSizeBytes() != 10<<20 {
			t.Errorf("expected 10 MiB limit, got %d", cfg.Organizer.MaxEmailSizeBytes())
		}
		if cfg.API.MetricsAddress() != "0.0.0.0:9090" {
			t.Errorf("expected metrics address 0.0.0.0:9090, got %s", cfg.API.MetricsAddress())
		}
		if cfg.Organizer.TemplatesDir != "config/templates" {
			t.Errorf("expected templates_dir config/templates, got %s", cfg.Organizer.TemplatesDir)
		}
		if cfg.DatabaseURL != "sqlite://inboxkeeper.db" {
			t.Errorf("expected default database URL, got %s", cfg.DatabaseURL)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("IK_API_PORT", "9999")
		t.Setenv("IK_ORGANIZER_BATCH_SIZE", "25")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.API.Port != 9999 {
			t.Errorf("expected port 9999, got %d", cfg.API.Port)
		}
		if cfg.Organizer.BatchSize != 25 {
			t.Errorf("expected batch_size 25, got %d", cfg.Organizer.BatchSize)
		}
	})

	t.Run("environment overrides config file", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "api:\n  port: 9090\norganizer:\n  rules_file: /etc/ik/rules.yaml\n")
		t.Setenv("IK_API_PORT", "8080")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.API.Port != 8080 {
			t.Errorf("environment should override config file: expected 8080, got %d", cfg.API.Port)
		}
		if cfg.Organizer.RulesFile != "/etc/ik/rules.yaml" {
			t.Errorf("expected rules_file from config file, got %s", cfg.Organizer.RulesFile)
		}
	})

	t.Run("templates and metrics from config file", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "api:\n  metrics_port: 9191\norganizer:\n  templates_dir: tpl\n")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Organizer.TemplatesDir != "tpl" {
			t.Errorf("expected templates_dir tpl, got %q", cfg.Organizer.TemplatesDir)
		}
		if cfg.API.MetricsPort != 9191 {
			t.Errorf("expected metrics_port 9191, got %d", cfg.API.MetricsPort)
		}
		if cfg.API.MetricsAddress() != "0.0.0.0:9191" {
			t.Errorf("expected metrics address 0.0.0.0:9191, got %s", cfg.API.MetricsAddress())
		}
	})

	t.Run("secret in config file rejected", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "api:\n  host: localhost\n  hmac_secret: should_be_rejected\n")

		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("expected error for secret in config file")
		}
		if err.Error() != "HMAC secrets not allowed in config files (use IK_HMAC_SECRET environment variable)" {
			t.Errorf("wrong error message: %v", err)
		}
	})

	t.Run("secret in environment accepted", func(t *testing.T) {
		t.Setenv("IK_HMAC_SECRET", testSecret)
		if _, err := LoadConfig(""); err != nil {
			t.Errorf("LoadConfig failed with env secret: %v", err)
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	invalid := []struct {
		name string
		env  string
		val  string
	}{
		{"port too large", "IK_API_PORT", "70000"},
		{"negative metrics_port", "IK_API_METRICS_PORT", "-1"},
		{"negative max_connections", "IK_API_MAX_CONNECTIONS", "-1"},
		{"zero batch_size", "IK_ORGANIZER_BATCH_SIZE", "0"},
		{"zero max_email_size_mb", "IK_ORGANIZER_MAX_EMAIL_SIZE_MB", "0"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			if _, err := LoadConfig(""); err == nil {
				t.Errorf("expected error for %s=%s", tt.env, tt.val)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, "config.env", "IK_ORGANIZER_MAILBOX_DIR=/var/mail/export\nIK_API_HOST=127.0.0.1\n")
	t.Setenv("IK_API_HOST", "10.0.0.1")
	t.Setenv("IK_ORGANIZER_MAILBOX_DIR", "")
	os.Unsetenv("IK_ORGANIZER_MAILBOX_DIR")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Organizer.MailboxDir != "/var/mail/export" {
		t.Errorf("expected mailbox_dir from env file, got %s", cfg.Organizer.MailboxDir)
	}
	if cfg.API.Host != "10.0.0.1" {
		t.Errorf("existing environment should win over env file, got %s", cfg.API.Host)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("LoadEnvFile(missing) = %v, want nil", err)
	}
}

func TestNewHMACSecret(t *testing.T) {
	secretID := strings.Repeat("a1", 16)
	value, err := NewHMACSecret(secretID)
	if err != nil {
		t.Fatalf("NewHMACSecret failed: %v", err)
	}
	id, secret, err := ParseHMACSecretWithID(value)
	if err != nil {
		t.Fatalf("generated secret does not parse: %v", err)
	}
	if id != secretID || len(secret) != 32 {
		t.Errorf("parsed %s with %d bytes, want %s with 32", id, len(secret), secretID)
	}
}
