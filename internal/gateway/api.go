// ABOUTME: HTTP handlers for the health, tool-invocation and diagnostics endpoints.
// ABOUTME: Serializes structured results; found=false maps to 404, failures stay 200.

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/emberworks/ember-gateway/internal/ratelimit"
)

// MaxInvokeBodySize is the maximum allowed size for invocation bodies (1MB).
const MaxInvokeBodySize = 1 << 20

// InvokeRequest is the JSON request body for POST /tools/{name}/invoke.
type InvokeRequest struct {
	Args json.RawMessage `json:"args,omitempty"`
}

// writeJSON writes v as a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth handles GET /health. It requires no credential and always
// answers 200 with a status field; the report carries issue codes only,
// never token content.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Report(r.Context())
	s.writeJSON(w, http.StatusOK, report)
}

// handleInvoke handles POST /tools/{name}/invoke.
// An unknown tool is a 404 carrying the found=false result; a tool that ran
// and failed is a 200 with success=false.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		s.sendJSONError(w, http.StatusBadRequest, "tool name required")
		return
	}

	var req InvokeRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxInvokeBodySize))
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "reading request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	start := time.Now()
	result := s.tools.Invoke(r.Context(), name, req.Args)
	s.metrics.invokeDuration.Observe(time.Since(start).Seconds())

	switch {
	case !result.Found:
		s.metrics.invocationsTotal.WithLabelValues("not_found").Inc()
		s.writeJSON(w, http.StatusNotFound, result)
	case !result.Success:
		s.metrics.invocationsTotal.WithLabelValues("failed").Inc()
		s.writeJSON(w, http.StatusOK, result)
	default:
		s.metrics.invocationsTotal.WithLabelValues("succeeded").Inc()
		s.writeJSON(w, http.StatusOK, result)
	}
}

// handleTestConnection handles GET /tools/{provider}/test-connection.
// Handshake failures are part of the result payload, never an HTTP error.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	providerRef := r.PathValue("provider")
	if providerRef == "" {
		s.sendJSONError(w, http.StatusBadRequest, "provider reference required")
		return
	}

	result := s.tools.TestConnection(r.Context(), providerRef)
	s.writeJSON(w, http.StatusOK, result)
}

// writeRateLimited answers a rejected request with 429 and Retry-After.
func (s *Server) writeRateLimited(w http.ResponseWriter, err error) {
	s.metrics.rateLimitedTotal.Inc()

	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		retryAfter := (limitErr.Result.MsBeforeNext + 999) / 1000
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":          "rate limited",
			"ms_before_next": limitErr.Result.MsBeforeNext,
		})
		return
	}
	s.sendJSONError(w, http.StatusTooManyRequests, "rate limited")
}
