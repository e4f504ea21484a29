// Package config provides configuration management for InboxKeeper commands.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full InboxKeeper configuration.
type Config struct {
	DatabaseURL string
	Organizer   OrganizerConfig
	API         APIConfig
}

// OrganizerConfig holds settings for organize runs and link export.
type OrganizerConfig struct {
	RulesFile       string
	MailboxDir      string
	EmailFolder     string // label recorded with processed messages
	ProcessedFolder string
	BatchSize       int
	MaxEmailSizeMB  int
	OutputDir       string
	TemplatesDir    string // reply_with_template sources, empty to simulate replies
}

// MaxEmailSizeBytes returns the message size limit in bytes.
func (o OrganizerConfig) MaxEmailSizeBytes() int64 {
	return int64(o.MaxEmailSizeMB) << 20
}

// APIConfig holds configuration for the gRPC organizer API service.
type APIConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	MaxBatchSize   int
	MetricsPort    int // admin HTTP listener for /metrics, 0 disables it
}

// Address returns host:port for listening.
func (a APIConfig) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// MetricsAddress returns host:port for the admin listener.
func (a APIConfig) MetricsAddress() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.MetricsPort))
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DatabaseURL: "sqlite://inboxkeeper.db",
		Organizer: OrganizerConfig{
			RulesFile:       "config/rules.json",
			MailboxDir:      "mailbox",
			EmailFolder:     "INBOX",
			ProcessedFolder: "Processed",
			BatchSize:       100,
			MaxEmailSizeMB:  10,
			OutputDir:       "output",
			TemplatesDir:    "config/templates",
		},
		API: APIConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
			MaxBatchSize:   1000,
			MetricsPort:    9090,
		},
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports IK_HMAC_SECRET (single) and IK_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check IK_HMAC_SECRET and IK_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("IK_HMAC_SECRET"); val != "" {
		if err := add("IK_HMAC_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets allow old and new keys to stay valid during rotation
	for i := 1; ; i++ {
		key := fmt.Sprintf("IK_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}

	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}

// NewHMACSecret returns a random IK_HMAC_SECRET value for secretID.
func NewHMACSecret(secretID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return secretID + ":" + base64.StdEncoding.EncodeToString(buf), nil
}
