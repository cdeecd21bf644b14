// ABOUTME: Keychain-backed secret store using the platform secret facility.
// ABOUTME: Distinguishes a missing driver from a transiently unreachable store.

package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keychain service name for gateway secrets.
const DefaultService = "ember-gateway"

// probeUser is the account name used to probe keychain reachability.
const probeUser = "__ember_probe__"

// KeychainStore persists the credential record in the platform keychain
// (Keychain on macOS, Credential Manager on Windows, Secret Service on Linux).
type KeychainStore struct {
	service string
	logger  *slog.Logger
}

// NewKeychainStore creates a keychain store under the given service name.
func NewKeychainStore(service string) *KeychainStore {
	if service == "" {
		service = DefaultService
	}
	return &KeychainStore{
		service: service,
		logger:  slog.Default().With("component", "secrets", "driver", "keychain"),
	}
}

// Driver returns "keychain".
func (s *KeychainStore) Driver() string { return "keychain" }

// mapError translates keyring errors into the store taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrTokenMissing
	}
	if errors.Is(err, keyring.ErrUnsupportedPlatform) {
		return fmt.Errorf("%w: platform has no keychain facility", ErrDriverMissing)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Save writes the record as JSON under the fixed record key.
func (s *KeychainStore) Save(_ context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if err := keyring.Set(s.service, RecordKey, string(data)); err != nil {
		return mapError(err)
	}
	s.logger.Debug("credential record saved")
	return nil
}

// Load returns the stored record, or ErrTokenMissing.
func (s *KeychainStore) Load(_ context.Context) (*Record, error) {
	data, err := keyring.Get(s.service, RecordKey)
	if err != nil {
		return nil, mapError(err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}

// Delete removes the stored record.
func (s *KeychainStore) Delete(_ context.Context) error {
	err := keyring.Delete(s.service, RecordKey)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return mapError(err)
	}
	return nil
}

// Ping probes the keychain by reading a throwaway entry. A not-found answer
// proves the facility is reachable.
func (s *KeychainStore) Ping(_ context.Context) error {
	_, err := keyring.Get(s.service, probeUser)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return mapError(err)
}
