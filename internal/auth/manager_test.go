// ABOUTME: Unit tests for token issuance, validation order and verification.
// ABOUTME: Uses an in-memory secret store to exercise the full lifecycle.

package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/emberworks/ember-gateway/internal/secrets"
)

// memStore is an in-memory secrets.Store for tests.
type memStore struct {
	mu      sync.Mutex
	rec     *secrets.Record
	loadErr error
}

func (s *memStore) Save(_ context.Context, rec *secrets.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.rec = &cp
	return nil
}

func (s *memStore) Load(_ context.Context) (*secrets.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.rec == nil {
		return nil, secrets.ErrTokenMissing
	}
	cp := *s.rec
	return &cp, nil
}

func (s *memStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}

func (s *memStore) Ping(_ context.Context) error { return nil }
func (s *memStore) Driver() string               { return "memory" }

func TestIssueRejectsUnknownRole(t *testing.T) {
	m := NewManager(&memStore{}, 32)

	for _, role := range []Role{"owner", "superuser", "", "ADMIN"} {
		if _, err := m.Issue(context.Background(), role, nil); !errors.Is(err, ErrRoleInvalid) {
			t.Errorf("Issue(role=%q) = %v, want ErrRoleInvalid", role, err)
		}
	}
}

func TestIssueRejectsPermissionsOutsideRole(t *testing.T) {
	m := NewManager(&memStore{}, 32)

	tests := []struct {
		name  string
		role  Role
		perms []string
	}{
		{name: "read-only cannot invoke", role: RoleReadOnly, perms: []string{PermInvoke}},
		{name: "operator cannot rotate", role: RoleOperator, perms: []string{PermInvoke, PermRotate}},
		{name: "unknown permission", role: RoleAdmin, perms: []string{"launch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Issue(context.Background(), tt.role, tt.perms); !errors.Is(err, ErrPermissionsInvalid) {
				t.Errorf("Issue() = %v, want ErrPermissionsInvalid", err)
			}
		})
	}
}

func TestValidationOrderRoleBeforePermissionsBeforeStrength(t *testing.T) {
	m := NewManager(&memStore{}, 32)
	ctx := context.Background()

	// Bad role and bad permissions and weak value: role error wins.
	if _, err := m.IssueValue(ctx, "nobody", []string{"launch"}, "short"); !errors.Is(err, ErrRoleInvalid) {
		t.Errorf("expected ErrRoleInvalid first, got %v", err)
	}

	// Good role, bad permissions, weak value: permissions error wins.
	if _, err := m.IssueValue(ctx, RoleReadOnly, []string{PermInvoke}, "short"); !errors.Is(err, ErrPermissionsInvalid) {
		t.Errorf("expected ErrPermissionsInvalid second, got %v", err)
	}

	// Good role and permissions, weak value: strength error last.
	if _, err := m.IssueValue(ctx, RoleReadOnly, []string{PermHealth}, "short"); !errors.Is(err, ErrTokenWeak) {
		t.Errorf("expected ErrTokenWeak last, got %v", err)
	}
}

func TestIssueValueStrength(t *testing.T) {
	m := NewManager(&memStore{}, 32)
	ctx := context.Background()

	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{name: "too short", value: "abc123", wantErr: ErrTokenWeak},
		{name: "31 chars", value: "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p", wantErr: ErrTokenWeak},
		{name: "long but tiny alphabet", value: strings.Repeat("ab", 32), wantErr: ErrTokenWeak},
		{name: "32 strong chars", value: "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.IssueValue(ctx, RoleOperator, []string{PermInvoke}, tt.value)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("IssueValue() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("IssueValue() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := NewManager(&memStore{}, 32)
	ctx := context.Background()

	tok, err := m.Issue(ctx, RoleOperator, []string{PermInvoke})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if len(tok.Value) < 32 {
		t.Errorf("generated token length %d < 32", len(tok.Value))
	}

	id, err := m.Verify(ctx, tok.Value)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.Role != RoleOperator {
		t.Errorf("Role = %q, want operator", id.Role)
	}
	if len(id.Permissions) != 1 || id.Permissions[0] != PermInvoke {
		t.Errorf("Permissions = %v, want [invoke]", id.Permissions)
	}

	// A one-character-altered credential must fail with the generic invalid error.
	altered := []byte(tok.Value)
	if altered[0] == 'A' {
		altered[0] = 'B'
	} else {
		altered[0] = 'A'
	}
	if _, err := m.Verify(ctx, string(altered)); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify(altered) = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyTrimsWhitespace(t *testing.T) {
	m := NewManager(&memStore{}, 32)
	ctx := context.Background()

	tok, err := m.Issue(ctx, RoleAdmin, []string{PermInvoke, PermRotate})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := m.Verify(ctx, "  "+tok.Value+"\n"); err != nil {
		t.Errorf("Verify() with surrounding whitespace error = %v", err)
	}
}

func TestVerifyNoStoredToken(t *testing.T) {
	m := NewManager(&memStore{}, 32)

	if _, err := m.Verify(context.Background(), "whatever-credential-value-here-x"); !errors.Is(err, ErrTokenMissing) {
		t.Errorf("Verify() = %v, want ErrTokenMissing", err)
	}
}

func TestRotateReplacesValueKeepsRole(t *testing.T) {
	m := NewManager(&memStore{}, 32)
	ctx := context.Background()

	first, err := m.Issue(ctx, RoleOperator, []string{PermInvoke, PermHealth})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	second, err := m.Rotate(ctx)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if second.Value == first.Value {
		t.Error("rotation did not replace token value")
	}
	if second.Role != RoleOperator {
		t.Errorf("rotated Role = %q, want operator", second.Role)
	}

	// Old value is dead, new value verifies.
	if _, err := m.Verify(ctx, first.Value); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify(old) = %v, want ErrTokenInvalid", err)
	}
	if _, err := m.Verify(ctx, second.Value); err != nil {
		t.Errorf("Verify(new) error = %v", err)
	}
}

func TestRotateWithoutTokenFails(t *testing.T) {
	m := NewManager(&memStore{}, 32)

	if _, err := m.Rotate(context.Background()); !errors.Is(err, ErrTokenMissing) {
		t.Errorf("Rotate() = %v, want ErrTokenMissing", err)
	}
}

func TestAuditIssueCodes(t *testing.T) {
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		m := NewManager(&memStore{}, 32)
		issues, err := m.Audit(ctx)
		if err != nil {
			t.Fatalf("Audit() error = %v", err)
		}
		if len(issues) != 1 || issues[0] != IssueTokenMissing {
			t.Errorf("issues = %v, want [token_missing]", issues)
		}
	})

	t.Run("driver missing", func(t *testing.T) {
		m := NewManager(&memStore{loadErr: secrets.ErrDriverMissing}, 32)
		issues, err := m.Audit(ctx)
		if err != nil {
			t.Fatalf("Audit() error = %v", err)
		}
		if len(issues) != 1 || issues[0] != IssueSecretDriverMissing {
			t.Errorf("issues = %v, want [token_secret_driver_missing]", issues)
		}
	})

	t.Run("store unavailable", func(t *testing.T) {
		m := NewManager(&memStore{loadErr: secrets.ErrStoreUnavailable}, 32)
		if _, err := m.Audit(ctx); !errors.Is(err, secrets.ErrStoreUnavailable) {
			t.Errorf("Audit() = %v, want ErrStoreUnavailable", err)
		}
	})

	t.Run("weak stored token", func(t *testing.T) {
		st := &memStore{rec: &secrets.Record{Value: "short", Role: "operator", Permissions: []string{PermInvoke}}}
		m := NewManager(st, 32)
		issues, err := m.Audit(ctx)
		if err != nil {
			t.Fatalf("Audit() error = %v", err)
		}
		if len(issues) != 1 || issues[0] != IssueTokenWeak {
			t.Errorf("issues = %v, want [token_weak]", issues)
		}
	})

	t.Run("invalid stored role", func(t *testing.T) {
		st := &memStore{rec: &secrets.Record{Value: "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6", Role: "root"}}
		m := NewManager(st, 32)
		issues, err := m.Audit(ctx)
		if err != nil {
			t.Fatalf("Audit() error = %v", err)
		}
		if len(issues) != 1 || issues[0] != IssueTokenRoleInvalid {
			t.Errorf("issues = %v, want [token_role_invalid]", issues)
		}
	})

	t.Run("permissions outside role", func(t *testing.T) {
		st := &memStore{rec: &secrets.Record{
			Value:       "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6",
			Role:        "read-only",
			Permissions: []string{PermInvoke},
		}}
		m := NewManager(st, 32)
		issues, err := m.Audit(ctx)
		if err != nil {
			t.Fatalf("Audit() error = %v", err)
		}
		if len(issues) != 1 || issues[0] != IssueTokenPermissionsInvalid {
			t.Errorf("issues = %v, want [token_permissions_invalid]", issues)
		}
	})

	t.Run("healthy token", func(t *testing.T) {
		m := NewManager(&memStore{}, 32)
		if _, err := m.Issue(ctx, RoleOperator, []string{PermInvoke}); err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		issues, err := m.Audit(ctx)
		if err != nil {
			t.Fatalf("Audit() error = %v", err)
		}
		if len(issues) != 0 {
			t.Errorf("issues = %v, want none", issues)
		}
	})
}
