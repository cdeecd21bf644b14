// ABOUTME: Tests for the encrypted file fallback store.
// ABOUTME: Covers round-trips, wrong passphrase, missing record, and config validation.

package secrets

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "token.enc"), "test-passphrase")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	rec := &Record{
		Value:       "zW8pQ2mK5vT7rX4nL9cF3hJ6dS1gB0aY",
		Role:        "operator",
		Permissions: []string{"invoke"},
		IssuedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Value != rec.Value {
		t.Errorf("Value = %q, want %q", got.Value, rec.Value)
	}
	if got.Role != rec.Role {
		t.Errorf("Role = %q, want %q", got.Role, rec.Role)
	}
	if len(got.Permissions) != 1 || got.Permissions[0] != "invoke" {
		t.Errorf("Permissions = %v, want [invoke]", got.Permissions)
	}
	if !got.IssuedAt.Equal(rec.IssuedAt) {
		t.Errorf("IssuedAt = %v, want %v", got.IssuedAt, rec.IssuedAt)
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	s := newTestFileStore(t)

	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrTokenMissing) {
		t.Errorf("Load() = %v, want ErrTokenMissing", err)
	}
}

func TestFileStoreSaveReplaces(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	first := &Record{Value: "first-token-value-0123456789abcdef", Role: "admin"}
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save(first) error = %v", err)
	}

	second := &Record{Value: "second-token-value-fedcba987654321", Role: "operator"}
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("Save(second) error = %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Value != second.Value {
		t.Errorf("Value = %q, want replacement %q", got.Value, second.Value)
	}
}

func TestFileStoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.enc")
	ctx := context.Background()

	s1, err := NewFileStore(path, "correct-horse")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := s1.Save(ctx, &Record{Value: "some-token-material-0123456789ab"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	s2, err := NewFileStore(path, "battery-staple")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, err := s2.Load(ctx); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("Load() with wrong passphrase = %v, want ErrConfigInvalid", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	if err := s.Delete(ctx); err != nil {
		t.Errorf("Delete() on absent record = %v, want nil", err)
	}

	if err := s.Save(ctx, &Record{Value: "token-to-delete-0123456789abcdef"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, ErrTokenMissing) {
		t.Errorf("Load() after delete = %v, want ErrTokenMissing", err)
	}
}

func TestNewFileStoreConfigValidation(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		passphrase string
	}{
		{name: "missing path", path: "", passphrase: "p"},
		{name: "missing passphrase", path: "/tmp/x", passphrase: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFileStore(tt.path, tt.passphrase); !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("NewFileStore() = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "vault"})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("Open() = %v, want ErrConfigInvalid", err)
	}
}

func TestOpenFileDriver(t *testing.T) {
	s, err := Open(context.Background(), Config{
		Driver:     "file",
		FilePath:   filepath.Join(t.TempDir(), "token.enc"),
		Passphrase: "pass",
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Driver() != "file" {
		t.Errorf("Driver() = %q, want file", s.Driver())
	}
}
