// ABOUTME: Configuration store contract: persisted settings plus liveness probes.
// ABOUTME: The health aggregator polls Ping/Initialized; the UI shell reads settings.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record doesn't exist.
var ErrNotFound = errors.New("not found")

// Setting is one persisted configuration value.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Store is the persistent configuration store behind the gateway.
type Store interface {
	// GetSetting returns a setting by key, or ErrNotFound.
	GetSetting(ctx context.Context, key string) (*Setting, error)
	// SetSetting creates or replaces a setting.
	SetSetting(ctx context.Context, key, value string) error
	// DeleteSetting removes a setting. Returns ErrNotFound if absent.
	DeleteSetting(ctx context.Context, key string) error
	// ListSettings returns all settings ordered by key.
	ListSettings(ctx context.Context) ([]*Setting, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
	// Initialized reports whether the schema bootstrap has completed.
	Initialized(ctx context.Context) (bool, error)

	// Close releases the underlying database handle.
	Close() error
}
