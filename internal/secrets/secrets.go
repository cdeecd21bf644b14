// ABOUTME: Durable storage for the gateway's authentication token material.
// ABOUTME: Defines the store contract and the secret-store error taxonomy.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store errors. ErrStoreUnavailable is transient and retryable; ErrDriverMissing
// and ErrConfigInvalid require operator action and are fatal at startup.
var (
	ErrTokenMissing     = errors.New("no stored token")
	ErrStoreUnavailable = errors.New("secret store unavailable")
	ErrDriverMissing    = errors.New("secret store driver missing")
	ErrConfigInvalid    = errors.New("secret store configuration invalid")
)

// RecordKey is the fixed identifier under which the gateway's credential is kept.
const RecordKey = "ember-gateway/api-token"

// Record holds the current credential and the role/permissions bound to it.
type Record struct {
	Value       string    `json:"value"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Store persists the single credential record.
type Store interface {
	// Save writes the record, replacing any previous one.
	Save(ctx context.Context, rec *Record) error
	// Load returns the stored record, or ErrTokenMissing when none exists.
	Load(ctx context.Context) (*Record, error)
	// Delete removes the stored record. Deleting an absent record is not an error.
	Delete(ctx context.Context) error
	// Ping reports whether the store's backing facility is reachable.
	Ping(ctx context.Context) error
	// Driver names the backing facility, e.g. "keychain" or "file".
	Driver() string
}

// Config selects and parameterizes the secret store.
type Config struct {
	// Driver is one of "auto", "keychain", "file".
	Driver string
	// Service is the keychain service name.
	Service string
	// FallbackEnabled permits falling back to the encrypted file store when
	// the keychain driver is missing.
	FallbackEnabled bool
	// FilePath is the encrypted fallback file location.
	FilePath string
	// Passphrase derives the fallback file's encryption key.
	Passphrase string
}

// Open selects a store per cfg. With driver "auto" the platform keychain is
// preferred; if its driver is missing and fallback is enabled, the encrypted
// file store is used instead, otherwise ErrConfigInvalid is returned so
// startup fails loudly rather than silently running without secret storage.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "auto":
		ks := NewKeychainStore(cfg.Service)
		err := ks.Ping(ctx)
		if err == nil {
			return ks, nil
		}
		if !errors.Is(err, ErrDriverMissing) {
			return nil, err
		}
		if !cfg.FallbackEnabled {
			return nil, fmt.Errorf("%w: keychain driver missing and file fallback not enabled", ErrConfigInvalid)
		}
		return NewFileStore(cfg.FilePath, cfg.Passphrase)
	case "keychain":
		ks := NewKeychainStore(cfg.Service)
		if err := ks.Ping(ctx); err != nil {
			return nil, err
		}
		return ks, nil
	case "file":
		return NewFileStore(cfg.FilePath, cfg.Passphrase)
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrConfigInvalid, cfg.Driver)
	}
}
