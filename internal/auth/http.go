// ABOUTME: HTTP middleware for bearer-token authentication on gateway endpoints.
// ABOUTME: Extracts the credential from the Authorization header and attaches the identity.

package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ExtractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func ExtractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// InvalidFunc is called when a request fails authentication, before the
// 401 is written. Used by the server to apply rate-limit penalties.
type InvalidFunc func(r *http.Request, reason string)

// Middleware authenticates every request through the manager and attaches
// the verified identity to the request context. Unauthenticated and
// invalid-credential requests receive a JSON 401.
func Middleware(m *Manager, onInvalid InvalidFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := ExtractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				if onInvalid != nil {
					onInvalid(r, errMsg)
				}
				writeAuthError(w, errMsg)
				return
			}

			id, err := m.Verify(r.Context(), token)
			if err != nil {
				reason := "invalid token"
				if errors.Is(err, ErrTokenMissing) {
					reason = "no token issued"
				}
				if onInvalid != nil {
					onInvalid(r, reason)
				}
				writeAuthError(w, reason)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequirePermission rejects authenticated requests whose identity lacks the
// given permission. Must be used after Middleware.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				writeAuthError(w, "not authenticated")
				return
			}
			if !id.Has(perm) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"permission ` + perm + ` required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
