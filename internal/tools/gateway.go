// ABOUTME: Tool invocation gateway: registry lookup, bounded execution, diagnostics.
// ABOUTME: All failures become structured results; nothing here raises a process fault.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInvokeTimeout bounds a single tool execution.
const DefaultInvokeTimeout = 30 * time.Second

// DefaultConnectTimeout bounds a provider connection test.
const DefaultConnectTimeout = 10 * time.Second

// ExecutionResult is the outcome of one tool invocation.
// Invariants: Success implies Found; Found=false implies Success=false and
// an empty Result.
type ExecutionResult struct {
	Found   bool            `json:"found"`
	Success bool            `json:"success"`
	Tool    string          `json:"tool"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Details map[string]any  `json:"details,omitempty"`
}

// ConnectionDetails is the diagnostics bundle of a connection test.
type ConnectionDetails struct {
	Provider     string   `json:"provider"`
	ToolCount    int      `json:"tool_count"`
	ToolNames    []string `json:"tool_names,omitempty"`
	StartupMs    int64    `json:"startup_ms"`
	Error        string   `json:"error,omitempty"`
	ErrorDetails string   `json:"error_details,omitempty"`
}

// ConnectionTestResult is the outcome of a provider connection test.
type ConnectionTestResult struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Details *ConnectionDetails `json:"details,omitempty"`
}

// Gateway validates invocation requests against the registry and delegates
// execution to providers under a per-call deadline.
type Gateway struct {
	registry       *Registry
	invokeTimeout  time.Duration
	connectTimeout time.Duration
	logger         *slog.Logger
}

// NewGateway creates a Gateway over the registry. Non-positive timeouts fall
// back to the defaults.
func NewGateway(registry *Registry, invokeTimeout, connectTimeout time.Duration) *Gateway {
	if invokeTimeout <= 0 {
		invokeTimeout = DefaultInvokeTimeout
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Gateway{
		registry:       registry,
		invokeTimeout:  invokeTimeout,
		connectTimeout: connectTimeout,
		logger:         slog.Default().With("component", "toolgateway"),
	}
}

// Invoke executes the named tool. An unregistered name yields a found=false
// result without execution; provider errors and timeouts yield found=true,
// success=false with the error captured. Invoke itself never fails.
func (g *Gateway) Invoke(ctx context.Context, name string, args json.RawMessage) *ExecutionResult {
	provider, ok := g.registry.Lookup(name)
	if !ok {
		return &ExecutionResult{
			Found:   false,
			Success: false,
			Tool:    name,
			Message: "tool not found",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.invokeTimeout)
	defer cancel()

	type outcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("provider panicked: %v", r)}
			}
		}()
		res, err := provider.Execute(ctx, name, args)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			g.logger.Warn("tool execution failed", "tool", name, "provider", provider.Name(), "error", out.err)
			return &ExecutionResult{
				Found:   true,
				Success: false,
				Tool:    name,
				Message: fmt.Sprintf("tool %q failed", name),
				Error:   out.err.Error(),
				Details: map[string]any{"provider": provider.Name()},
			}
		}
		return &ExecutionResult{
			Found:   true,
			Success: true,
			Tool:    name,
			Message: fmt.Sprintf("tool %q completed", name),
			Result:  out.result,
		}
	case <-ctx.Done():
		// The in-flight provider call is abandoned, not awaited.
		g.logger.Warn("tool execution timed out", "tool", name, "provider", provider.Name())
		return &ExecutionResult{
			Found:   true,
			Success: false,
			Tool:    name,
			Message: fmt.Sprintf("tool %q timed out", name),
			Error:   ctx.Err().Error(),
			Details: map[string]any{
				"provider":   provider.Name(),
				"timeout_ms": g.invokeTimeout.Milliseconds(),
			},
		}
	}
}

// TestConnection performs a lightweight handshake against the referenced
// provider: it enumerates the provider's tools and measures how long the
// handshake takes. Failures are captured in the result, never propagated,
// so the caller can render actionable diagnostics.
func (g *Gateway) TestConnection(ctx context.Context, providerRef string) *ConnectionTestResult {
	provider, ok := g.registry.Provider(providerRef)
	if !ok {
		return &ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("provider %q is not registered", providerRef),
			Details: &ConnectionDetails{
				Provider: providerRef,
				Error:    "provider_not_found",
			},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.connectTimeout)
	defer cancel()

	start := time.Now()
	infos, err := provider.Tools(ctx)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		g.logger.Warn("connection test failed", "provider", providerRef, "error", err)
		return &ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("connection to provider %q failed", providerRef),
			Details: &ConnectionDetails{
				Provider:     providerRef,
				StartupMs:    elapsed,
				Error:        "handshake_failed",
				ErrorDetails: err.Error(),
			},
		}
	}

	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return &ConnectionTestResult{
		Success: true,
		Message: fmt.Sprintf("provider %q reachable", providerRef),
		Details: &ConnectionDetails{
			Provider:  providerRef,
			ToolCount: len(infos),
			ToolNames: names,
			StartupMs: elapsed,
		},
	}
}
