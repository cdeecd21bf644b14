// ABOUTME: Token issuance, strength validation and verification for the gateway.
// ABOUTME: Owns the credential lifecycle on top of the secret store.

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emberworks/ember-gateway/internal/secrets"
)

// Issuance and verification errors.
var (
	ErrRoleInvalid        = errors.New("role not in closed role set")
	ErrPermissionsInvalid = errors.New("permissions not valid for role")
	ErrTokenWeak          = errors.New("token below minimum strength")
	ErrTokenMissing       = errors.New("no token issued")
	ErrTokenInvalid       = errors.New("invalid credential")
)

// DefaultMinTokenLength is the minimum accepted token length.
const DefaultMinTokenLength = 32

// minDistinctChars is the charset-entropy floor: a value of the minimum
// length drawn from a tiny alphabet is rejected even if long enough.
const minDistinctChars = 8

// Token is an issued credential. The Value is handed to the caller exactly
// once and is never logged.
type Token struct {
	Value       string
	IssuedAt    time.Time
	Role        Role
	Permissions []string
}

// Manager owns the gateway credential lifecycle.
type Manager struct {
	store     secrets.Store
	minLength int
	logger    *slog.Logger
}

// NewManager creates a Manager over the given secret store. minLength <= 0
// falls back to DefaultMinTokenLength.
func NewManager(store secrets.Store, minLength int) *Manager {
	if minLength <= 0 {
		minLength = DefaultMinTokenLength
	}
	return &Manager{
		store:     store,
		minLength: minLength,
		logger:    slog.Default().With("component", "auth"),
	}
}

// ValidateStrength checks a candidate token value against the minimum
// length and charset bar. Returns ErrTokenWeak on failure.
func (m *Manager) ValidateStrength(value string) error {
	if len(value) < m.minLength {
		return fmt.Errorf("%w: length %d < %d", ErrTokenWeak, len(value), m.minLength)
	}
	distinct := make(map[rune]struct{}, len(value))
	for _, r := range value {
		distinct[r] = struct{}{}
	}
	if len(distinct) < minDistinctChars {
		return fmt.Errorf("%w: only %d distinct characters", ErrTokenWeak, len(distinct))
	}
	return nil
}

// generateValue produces a random token value meeting the strength bar.
func (m *Manager) generateValue() (string, error) {
	// base64url expands 3 bytes to 4 chars; round up past the length floor.
	n := (m.minLength*3 + 3) / 4
	if n < 24 {
		n = 24
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token material: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue creates, validates and stores a fresh token for the given role and
// permission set, replacing any previously stored credential.
// Validation order: role, then permissions, then strength.
func (m *Manager) Issue(ctx context.Context, role Role, permissions []string) (*Token, error) {
	value, err := m.generateValue()
	if err != nil {
		return nil, err
	}
	return m.IssueValue(ctx, role, permissions, value)
}

// IssueValue is Issue with a caller-supplied token value. Used for imports
// and rotation with externally generated material.
func (m *Manager) IssueValue(ctx context.Context, role Role, permissions []string, value string) (*Token, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrRoleInvalid, role)
	}
	if !allowedForRole(role, permissions) {
		return nil, fmt.Errorf("%w: role %q", ErrPermissionsInvalid, role)
	}
	if err := m.ValidateStrength(value); err != nil {
		return nil, err
	}

	tok := &Token{
		Value:       value,
		IssuedAt:    time.Now().UTC(),
		Role:        role,
		Permissions: append([]string(nil), permissions...),
	}

	rec := &secrets.Record{
		Value:       tok.Value,
		Role:        string(tok.Role),
		Permissions: tok.Permissions,
		IssuedAt:    tok.IssuedAt,
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}

	m.logger.Info("token issued", "role", role, "permissions", permissions)
	return tok, nil
}

// Rotate replaces the stored credential with fresh material, keeping the
// current role and permissions. Fails with ErrTokenMissing when nothing has
// been issued yet.
func (m *Manager) Rotate(ctx context.Context) (*Token, error) {
	rec, err := m.store.Load(ctx)
	if errors.Is(err, secrets.ErrTokenMissing) {
		return nil, ErrTokenMissing
	}
	if err != nil {
		return nil, fmt.Errorf("loading current token: %w", err)
	}
	return m.Issue(ctx, Role(rec.Role), rec.Permissions)
}

// Verify checks a presented credential against the stored value and resolves
// its role and permissions. The comparison is constant time; a non-matching
// credential is indistinguishable from any other invalid one.
func (m *Manager) Verify(ctx context.Context, candidate string) (*Identity, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil, ErrTokenInvalid
	}

	rec, err := m.store.Load(ctx)
	if errors.Is(err, secrets.ErrTokenMissing) {
		return nil, ErrTokenMissing
	}
	if err != nil {
		return nil, fmt.Errorf("loading stored token: %w", err)
	}

	// Hash both sides so the comparison is constant time regardless of length.
	want := sha256.Sum256([]byte(rec.Value))
	got := sha256.Sum256([]byte(candidate))
	if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
		return nil, ErrTokenInvalid
	}

	return &Identity{
		Role:        Role(rec.Role),
		Permissions: append([]string(nil), rec.Permissions...),
	}, nil
}

// Token audit issue codes surfaced through the health report.
const (
	IssueTokenMissing            = "token_missing"
	IssueTokenWeak               = "token_weak"
	IssueTokenRoleInvalid        = "token_role_invalid"
	IssueTokenPermissionsInvalid = "token_permissions_invalid"
	IssueSecretDriverMissing     = "token_secret_driver_missing"
)

// Audit inspects the stored credential for health reporting. It returns
// issue codes describing the token's condition; the returned error is
// non-nil only when the secret store itself cannot be consulted. Token
// content never appears in the result.
func (m *Manager) Audit(ctx context.Context) ([]string, error) {
	rec, err := m.store.Load(ctx)
	if errors.Is(err, secrets.ErrTokenMissing) {
		return []string{IssueTokenMissing}, nil
	}
	if errors.Is(err, secrets.ErrDriverMissing) {
		return []string{IssueSecretDriverMissing}, nil
	}
	if err != nil {
		return nil, err
	}

	var issues []string
	if err := m.ValidateStrength(rec.Value); err != nil {
		issues = append(issues, IssueTokenWeak)
	}
	if !ValidRole(Role(rec.Role)) {
		issues = append(issues, IssueTokenRoleInvalid)
	} else if !allowedForRole(Role(rec.Role), rec.Permissions) {
		issues = append(issues, IssueTokenPermissionsInvalid)
	}
	return issues, nil
}
