package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// keyPrefix and keyVersion are the first two dash-separated key fields.
const (
	keyPrefix  = "ik"
	keyVersion = "v1"

	secretIDLen   = 32 // UUID without hyphens
	randomDataLen = 64 // 256 bits, hex encoded

	// APIKeyLen is the length of a well-formed key, separators included.
	APIKeyLen = len(keyPrefix) + len(keyVersion) + secretIDLen + randomDataLen + 3
)

// ParseAPIKey extracts secret_id and random_data from API key format.
// Format: ik-v1-<secret_id>-<random_data> (103 chars total).
// Returns ErrInvalidKeyFormat if format doesn't match.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != keyPrefix || parts[1] != keyVersion {
		return "", "", ErrInvalidKeyFormat
	}

	secretID = parts[2]
	randomData = parts[3]

	if len(secretID) != secretIDLen || len(randomData) != randomDataLen {
		return "", "", ErrInvalidKeyFormat
	}

	for _, c := range secretID + randomData {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", "", ErrInvalidKeyFormat
		}
	}

	return secretID, randomData, nil
}

// ComputeHMAC computes HMAC-SHA256 signature of API key using secret.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// VerifyHMAC verifies HMAC signature using constant-time comparison.
func VerifyHMAC(expectedHash, computedHash []byte) bool {
	return hmac.Equal(expectedHash, computedHash)
}

// FormatAPIKey constructs API key from components.
func FormatAPIKey(secretID, randomData string) string {
	return fmt.Sprintf("%s-%s-%s-%s", keyPrefix, keyVersion, secretID, randomData)
}

// NewSecretID returns a fresh secret identifier for IK_HMAC_SECRET.
func NewSecretID() string {
	return strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}

// GenerateAPIKey creates a random key bound to secretID.
func GenerateAPIKey(secretID string) (string, error) {
	buf := make([]byte, randomDataLen/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}
	return FormatAPIKey(secretID, hex.EncodeToString(buf)), nil
}

// IssuedKey is a newly created API key. Plaintext is shown once; only its
// HMAC is stored.
type IssuedKey struct {
	ID        string
	Name      string
	Plaintext string
	SecretID  string
}

// IssueAPIKey generates a key for name under secretID and stores its HMAC.
func IssueAPIKey(queries Queries, secrets map[string][]byte, secretID, name string) (*IssuedKey, error) {
	secret, ok := secrets[secretID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, secretID)
	}

	plaintext, err := GenerateAPIKey(secretID)
	if err != nil {
		return nil, err
	}

	id := uuid.Must(uuid.NewV7()).String()
	hash := ComputeHMAC(secret, plaintext)
	if _, err := queries.Exec("insert-api-key", id, name, hash, secretID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to store API key: %w", err)
	}

	return &IssuedKey{ID: id, Name: name, Plaintext: plaintext, SecretID: secretID}, nil
}

// RevokeAPIKey marks a key as revoked.
func RevokeAPIKey(queries Queries, id string) error {
	res, err := queries.Exec("revoke-api-key", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidKey, id)
	}
	return nil
}
