package auth

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const testSecretID = "0190a1b2c3d4e5f60718293a4b5c6d7e"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type storedKey struct {
	id        string
	name      string
	hash      []byte
	revokedAt sql.NullTime
	lastUsed  sql.NullTime
}

type fakeQueries struct {
	keys    []*storedKey
	execs   []string
	failGet error
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

func (f *fakeQueries) Get(name string, dest interface{}, args ...interface{}) error {
	if f.failGet != nil {
		return f.failGet
	}
	hash := args[0].([]byte)
	for _, k := range f.keys {
		if !VerifyHMAC(k.hash, hash) {
			continue
		}
		v := reflect.ValueOf(dest).Elem()
		v.FieldByName("APIKeyID").SetString(k.id)
		v.FieldByName("Name").SetString(k.name)
		v.FieldByName("RevokedAt").Set(reflect.ValueOf(k.revokedAt))
		v.FieldByName("LastUsedAt").Set(reflect.ValueOf(k.lastUsed))
		return nil
	}
	return sql.ErrNoRows
}

func (f *fakeQueries) Exec(name string, args ...interface{}) (sql.Result, error) {
	f.execs = append(f.execs, name)
	switch name {
	case "insert-api-key":
		f.keys = append(f.keys, &storedKey{id: args[0].(string), name: args[1].(string), hash: args[2].([]byte)})
		return fakeResult(1), nil
	case "revoke-api-key":
		for _, k := range f.keys {
			if k.id == args[1].(string) {
				k.revokedAt = sql.NullTime{Time: args[0].(time.Time), Valid: true}
				return fakeResult(1), nil
			}
		}
		return fakeResult(0), nil
	}
	return fakeResult(1), nil
}

func secrets() map[string][]byte {
	return map[string][]byte{testSecretID: testSecret}
}

func TestParseAPIKey(t *testing.T) {
	random := strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", FormatAPIKey(testSecretID, random), false},
		{"wrong prefix", "tk-v1-" + testSecretID + "-" + random, true},
		{"wrong version", "ik-v2-" + testSecretID + "-" + random, true},
		{"short secret id", FormatAPIKey(testSecretID[:30], random), true},
		{"short random", FormatAPIKey(testSecretID, random[:10]), true},
		{"uppercase hex", FormatAPIKey(strings.ToUpper(testSecretID), random), true},
		{"extra field", FormatAPIKey(testSecretID, random) + "-00", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, got, err := ParseAPIKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKeyFormat) {
					t.Errorf("ParseAPIKey() error = %v, want ErrInvalidKeyFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAPIKey() error = %v", err)
			}
			if secretID != testSecretID || got != random {
				t.Errorf("ParseAPIKey() = %q, %q", secretID, got)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey(testSecretID)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}
	b, _ := GenerateAPIKey(testSecretID)
	if a == b {
		t.Error("GenerateAPIKey() returned the same key twice")
	}
	if len(a) != 103 || len(a) != APIKeyLen {
		t.Errorf("len(key) = %d, want 103 (APIKeyLen = %d)", len(a), APIKeyLen)
	}
	if id, _, err := ParseAPIKey(a); err != nil || id != testSecretID {
		t.Errorf("ParseAPIKey(generated) = %q, %v", id, err)
	}
	if id := NewSecretID(); len(id) != 32 {
		t.Errorf("NewSecretID() = %q, want 32 chars", id)
	}
}

func TestAuthenticate(t *testing.T) {
	q := &fakeQueries{}
	issued, err := IssueAPIKey(q, secrets(), testSecretID, "ci-bot")
	if err != nil {
		t.Fatalf("IssueAPIKey() error = %v", err)
	}
	a := NewAuthenticator(secrets(), q)

	client, err := a.Authenticate(context.Background(), issued.Plaintext)
	if err != nil || client != "ci-bot" {
		t.Fatalf("Authenticate() = %q, %v, want ci-bot", client, err)
	}
	if q.execs[len(q.execs)-1] != "update-api-key-last-used" {
		t.Errorf("last exec = %q, want last-used update", q.execs[len(q.execs)-1])
	}

	forged, _ := GenerateAPIKey(testSecretID)
	if _, err := a.Authenticate(context.Background(), forged); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Authenticate(forged) error = %v, want ErrInvalidKey", err)
	}

	other, _ := GenerateAPIKey(strings.Repeat("f", 32))
	if _, err := a.Authenticate(context.Background(), other); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Authenticate(unknown secret) error = %v, want ErrUnknownKey", err)
	}

	if err := RevokeAPIKey(q, issued.ID); err != nil {
		t.Fatalf("RevokeAPIKey() error = %v", err)
	}
	if _, err := a.Authenticate(context.Background(), issued.Plaintext); !errors.Is(err, ErrKeyRevoked) {
		t.Errorf("Authenticate(revoked) error = %v, want ErrKeyRevoked", err)
	}
	if err := RevokeAPIKey(q, "missing"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("RevokeAPIKey(missing) error = %v, want ErrInvalidKey", err)
	}
}

func TestShouldUpdateLastUsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		last sql.NullTime
		want bool
	}{
		{"never used", sql.NullTime{}, true},
		{"just used", sql.NullTime{Time: now.Add(-10 * time.Second), Valid: true}, false},
		{"used long ago", sql.NullTime{Time: now.Add(-2 * time.Minute), Valid: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldUpdateLastUsed(tt.last, now); got != tt.want {
				t.Errorf("shouldUpdateLastUsed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnaryInterceptor(t *testing.T) {
	q := &fakeQueries{}
	issued, err := IssueAPIKey(q, secrets(), testSecretID, "ci-bot")
	if err != nil {
		t.Fatalf("IssueAPIKey() error = %v", err)
	}
	revoked, _ := IssueAPIKey(q, secrets(), testSecretID, "old")
	_ = RevokeAPIKey(q, revoked.ID)

	interceptor := NewAuthenticator(secrets(), q).UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/inboxkeeper.v1.Organizer/Evaluate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return ClientFromContext(ctx), nil
	}

	withKey := func(key string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", key))
	}

	tests := []struct {
		name     string
		ctx      context.Context
		info     *grpc.UnaryServerInfo
		wantCode codes.Code
		want     string
	}{
		{"valid key", withKey(issued.Plaintext), info, codes.OK, "ci-bot"},
		{"no metadata", context.Background(), info, codes.Unauthenticated, ""},
		{"no key", metadata.NewIncomingContext(context.Background(), metadata.MD{}), info, codes.Unauthenticated, ""},
		{"bad format", withKey("nope"), info, codes.Unauthenticated, ""},
		{"revoked", withKey(revoked.Plaintext), info, codes.PermissionDenied, ""},
		{"health check", context.Background(), &grpc.UnaryServerInfo{FullMethod: healthCheckMethod}, codes.OK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interceptor(tt.ctx, nil, tt.info, handler)
			if code := status.Code(err); code != tt.wantCode {
				t.Fatalf("code = %v, want %v (err %v)", code, tt.wantCode, err)
			}
			if err == nil && got != tt.want {
				t.Errorf("client = %v, want %q", got, tt.want)
			}
		})
	}

	q.failGet = errors.New("connection refused")
	if _, err := interceptor(withKey(issued.Plaintext), nil, info, handler); status.Code(err) != codes.Unavailable {
		t.Errorf("database failure code = %v, want Unavailable", status.Code(err))
	}
}
