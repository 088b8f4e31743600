package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/relaystack/toolhost/internal/fault"
)

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator()

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "thk_abcdef123456", false},
		{"wrong prefix", "tsk_abcdef123456", true},
		{"too short", "thk_", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), AuthMetadata{APIKey: tt.key})
			if tt.wantErr {
				if fault.KindOf(err) != fault.KindAuthenticationFailed {
					t.Fatalf("expected AuthenticationFailed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
		})
	}
}

func TestStaticAuthenticatorDerivesUser(t *testing.T) {
	a := NewStaticAuthenticator()

	ident, err := a.Authenticate(context.Background(), AuthMetadata{APIKey: "thk_abcdef123456"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ident.UserID != "static-thk_abcd" {
		t.Fatalf("derived user = %s", ident.UserID)
	}

	ident, err = a.Authenticate(context.Background(), AuthMetadata{APIKey: "thk_abcdef123456", UserID: "alice"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ident.UserID != "alice" {
		t.Fatalf("explicit user = %s", ident.UserID)
	}
}

// stubKeyStore returns fixed rows keyed by prefix.
type stubKeyStore struct {
	rows  map[string]*keyRow
	calls int
}

func (s *stubKeyStore) LookupByPrefix(_ context.Context, prefix string) (*keyRow, error) {
	s.calls++
	row, ok := s.rows[prefix]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return row, nil
}

func hashKey(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func TestPostgresAuthenticator(t *testing.T) {
	const key = "thk_live_0123456789"
	store := &stubKeyStore{rows: map[string]*keyRow{
		key[:keyPrefixLen]: {
			UserID:      "alice",
			APIKeyHash:  hashKey(t, key),
			AllowedCaps: `["read","write"]`,
			DenyTools:   `["drop_tables"]`,
		},
	}}

	a := NewPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	ident, err := a.Authenticate(context.Background(), AuthMetadata{APIKey: key})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ident.UserID != "alice" {
		t.Fatalf("user = %s", ident.UserID)
	}
	if len(ident.AllowedCaps) != 2 || ident.AllowedCaps[0] != "read" {
		t.Fatalf("allowed caps = %v", ident.AllowedCaps)
	}
	if len(ident.DenyTools) != 1 || ident.DenyTools[0] != "drop_tables" {
		t.Fatalf("deny tools = %v", ident.DenyTools)
	}
}

func TestPostgresAuthenticatorWrongKey(t *testing.T) {
	const key = "thk_live_0123456789"
	store := &stubKeyStore{rows: map[string]*keyRow{
		key[:keyPrefixLen]: {
			UserID:     "alice",
			APIKeyHash: hashKey(t, key),
		},
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	// Same prefix, different suffix: hash comparison must fail.
	_, err := a.Authenticate(context.Background(), AuthMetadata{APIKey: "thk_live_9999999999"})
	if fault.KindOf(err) != fault.KindAuthenticationFailed {
		t.Fatalf("expected AuthenticationFailed, got %v", err)
	}
}

func TestPostgresAuthenticatorUnknownPrefix(t *testing.T) {
	a := NewPostgresAuthenticatorWithStore(&stubKeyStore{rows: map[string]*keyRow{}}, time.Minute, zap.NewNop())
	_, err := a.Authenticate(context.Background(), AuthMetadata{APIKey: "thk_unknown12345"})
	if fault.KindOf(err) != fault.KindAuthenticationFailed {
		t.Fatalf("expected AuthenticationFailed, got %v", err)
	}
}

func TestPostgresAuthenticatorCaches(t *testing.T) {
	const key = "thk_live_0123456789"
	store := &stubKeyStore{rows: map[string]*keyRow{
		key[:keyPrefixLen]: {
			UserID:     "alice",
			APIKeyHash: hashKey(t, key),
		},
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := a.Authenticate(context.Background(), AuthMetadata{APIKey: key}); err != nil {
			t.Fatalf("Authenticate %d: %v", i, err)
		}
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 store lookup, got %d", store.calls)
	}
}
