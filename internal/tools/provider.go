// ABOUTME: Tool provider contract: named capabilities executed on request.
// ABOUTME: Providers are external and pluggable; the gateway treats results as opaque.

package tools

import (
	"context"
	"encoding/json"
)

// ToolInfo describes one tool a provider exposes.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Provider executes named capabilities. Tools enumerates what the provider
// offers; Execute runs one tool and returns its raw result, which the
// gateway surfaces verbatim.
type Provider interface {
	Name() string
	Tools(ctx context.Context) ([]ToolInfo, error)
	Execute(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error)
}
