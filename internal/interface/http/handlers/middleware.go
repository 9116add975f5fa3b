// Package handlers contains the reusable HTTP building blocks of the API:
// API key authentication, health checks and small header middleware.
package handlers

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// APIKeyAuth checks request keys against bcrypt hashes. Keys are never kept
// in plain text; a verified key is remembered by its SHA-256 digest so that
// bcrypt runs once per key rather than once per request.
type APIKeyAuth struct {
	headerName string
	hashes     [][]byte

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]struct{}
}

// NewAPIKeyAuth creates an authenticator from bcrypt hashes.
func NewAPIKeyAuth(headerName string, hashes []string) (*APIKeyAuth, error) {
	if headerName == "" {
		headerName = "X-API-Key"
	}
	a := &APIKeyAuth{
		headerName: headerName,
		verified:   make(map[[sha256.Size]byte]struct{}),
	}
	for i, h := range hashes {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("api key hash %d: %w", i, err)
		}
		a.hashes = append(a.hashes, []byte(h))
	}
	return a, nil
}

// HashAPIKey returns the bcrypt hash to put in configuration for key.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Enabled reports whether any key is configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.hashes) > 0
}

// IsValid checks if an API key is valid.
func (a *APIKeyAuth) IsValid(key string) bool {
	if key == "" {
		return false
	}
	digest := sha256.Sum256([]byte(key))

	a.mu.RLock()
	_, ok := a.verified[digest]
	a.mu.RUnlock()
	if ok {
		return true
	}

	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(key)) == nil {
			a.mu.Lock()
			a.verified[digest] = struct{}{}
			a.mu.Unlock()
			return true
		}
	}
	return false
}

// Middleware rejects requests without a valid key. With no keys configured
// every request passes.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(a.headerName)
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		switch {
		case key == "":
			writeError(w, http.StatusUnauthorized, "missing_api_key", "API key is required")
		case !a.IsValid(key):
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HEADER MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// NoCacheMiddleware prevents caching of live session state.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// SecurityHeadersMiddleware adds security-related headers.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimitMiddleware limits the size of request bodies.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes the same error envelope as the API handlers.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}
