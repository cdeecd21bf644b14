// ABOUTME: HTTP tool provider speaking JSON-RPC 2.0 (tools/list, tools/call).
// ABOUTME: Registered from manifests so external providers work out of the box.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// MaxResponseBodySize is the maximum allowed size for provider responses (4MB).
const MaxResponseBodySize = 4 << 20

// JSON-RPC 2.0 frame types.

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *jsonRPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// listToolsResult is the result payload of tools/list.
type listToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// callToolParams is the params payload of tools/call.
type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// HTTPProvider invokes an external tool provider over HTTP JSON-RPC.
type HTTPProvider struct {
	name     string
	endpoint string
	client   *http.Client
	nextID   atomic.Int64
}

// NewHTTPProvider creates a provider client for the given endpoint.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultInvokeTimeout
	}
	return &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the provider's registered name.
func (p *HTTPProvider) Name() string { return p.name }

// call performs one JSON-RPC round trip.
func (p *HTTPProvider) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding params: %w", err)
		}
		rawParams = data
	}

	frame := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      p.nextID.Add(1),
		Method:  method,
		Params:  rawParams,
	}
	body, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling provider %q: %w", p.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider %q returned status %d", p.name, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading provider response: %w", err)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("decoding provider response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// Tools enumerates the provider's tools via tools/list.
func (p *HTTPProvider) Tools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := p.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding tool list: %w", err)
	}
	return result.Tools, nil
}

// Execute runs a tool via tools/call and returns its raw result.
func (p *HTTPProvider) Execute(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error) {
	return p.call(ctx, "tools/call", callToolParams{Name: tool, Arguments: args})
}

var _ Provider = (*HTTPProvider)(nil)
