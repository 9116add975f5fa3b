package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sharpmind/trainer-hub/pkg/circuitbreaker"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("trainer-key"), bcrypt.MinCost)
	require.NoError(t, err)

	auth, err := NewAPIKeyAuth("", []string{string(hash), " "})
	require.NoError(t, err)
	require.True(t, auth.Enabled())

	h := auth.Middleware(okHandler())
	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "guess", http.StatusUnauthorized},
		{"header key", "X-API-Key", "trainer-key", http.StatusNoContent},
		{"bearer key", "Authorization", "Bearer trainer-key", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	// verified keys are remembered
	assert.Len(t, auth.verified, 1)
}

func TestAPIKeyAuth_DisabledAndInvalidHash(t *testing.T) {
	auth, err := NewAPIKeyAuth("X-API-Key", nil)
	require.NoError(t, err)
	assert.False(t, auth.Enabled())

	rec := httptest.NewRecorder()
	auth.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = NewAPIKeyAuth("X-API-Key", []string{"plain-text-key"})
	assert.Error(t, err)
}

func TestRequestSizeLimitMiddleware(t *testing.T) {
	h := RequestSizeLimitMiddleware(8)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"answer":"0123456789"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type fakeGenerator struct {
	healthy bool
	state   circuitbreaker.State
}

func (f fakeGenerator) IsHealthy(context.Context) bool     { return f.healthy }
func (f fakeGenerator) BreakerState() circuitbreaker.State { return f.state }

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("test")
	c.AddCheck("database", NewPingCheck(pingerFunc(func(context.Context) error { return nil })))
	c.AddOptionalCheck("generator", NewGeneratorCheck(fakeGenerator{healthy: true, state: circuitbreaker.StateOpen}))

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready, "optional failures keep the instance ready")
	assert.Equal(t, "Some checks failed: generator", status.Message)
	assert.False(t, status.Checks["generator"].Healthy)
	assert.False(t, status.Checks["generator"].Critical)

	c.AddCheck("cache", NewPingCheck(pingerFunc(func(context.Context) error { return errors.New("connection refused") })))
	status = c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: cache, generator", status.Message)
	assert.Equal(t, "connection refused", status.Checks["cache"].Message)

	healthy := NewCompositeHealthChecker("test")
	healthy.AddCheck("generator", NewGeneratorCheck(fakeGenerator{healthy: true, state: circuitbreaker.StateClosed}))
	assert.True(t, healthy.Check(context.Background()).Healthy)
}
