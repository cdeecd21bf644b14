// ABOUTME: Encrypted on-disk fallback secret store for platforms without a keychain.
// ABOUTME: scrypt-derived key, XChaCha20-Poly1305 sealed record, atomic writes.

package secrets

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 16

	// scrypt parameters per the package's current recommendation.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// FileStore persists the credential record in a single encrypted file.
// It exists only as an explicitly configured fallback for platforms where
// the keychain facility is absent.
type FileStore struct {
	path       string
	passphrase []byte
	logger     *slog.Logger
}

// NewFileStore creates a file store at path, encrypting with a key derived
// from passphrase. Both are required: an empty value is ErrConfigInvalid.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file store requires a path", ErrConfigInvalid)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("%w: file store requires a passphrase", ErrConfigInvalid)
	}
	return &FileStore{
		path:       path,
		passphrase: []byte(passphrase),
		logger:     slog.Default().With("component", "secrets", "driver", "file"),
	}, nil
}

// Driver returns "file".
func (s *FileStore) Driver() string { return "file" }

// seal encrypts plaintext as salt || nonce || ciphertext.
func (s *FileStore) seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	key, err := scrypt.Key(s.passphrase, salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// open decrypts a blob produced by seal.
func (s *FileStore) open(blob []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	if len(blob) < saltSize+nonceSize {
		return nil, fmt.Errorf("%w: secret file truncated", ErrStoreUnavailable)
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	key, err := scrypt.Key(s.passphrase, salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: secret file cannot be decrypted", ErrConfigInvalid)
	}
	return plaintext, nil
}

// Save encrypts and writes the record, replacing any previous file atomically.
func (s *FileStore) Save(_ context.Context, rec *Record) error {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	blob, err := s.seal(plaintext)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: creating secret directory: %v", ErrStoreUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing secret file: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: setting secret file mode: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing secret file: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replacing secret file: %v", ErrStoreUnavailable, err)
	}

	s.logger.Debug("credential record saved", "path", s.path)
	return nil
}

// Load decrypts and returns the stored record, or ErrTokenMissing.
func (s *FileStore) Load(_ context.Context) (*Record, error) {
	blob, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrTokenMissing
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading secret file: %v", ErrStoreUnavailable, err)
	}

	plaintext, err := s.open(blob)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}

// Delete removes the secret file.
func (s *FileStore) Delete(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: removing secret file: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks the containing directory is accessible.
func (s *FileStore) Ping(_ context.Context) error {
	dir := filepath.Dir(s.path)
	if _, err := os.Stat(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
