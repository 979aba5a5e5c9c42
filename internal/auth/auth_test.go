package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"obd-go-gateway/internal/config"
)

func enabledConfig(t *testing.T) config.AuthConfig {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return config.AuthConfig{
		Enabled:       true,
		JWTSecret:     "test-secret",
		JWTExpiration: 5,
		APIKeys:       []string{"key-one", "key-two"},
		Users: []config.User{
			{Username: "garage", PasswordHash: string(hash), Role: "viewer"},
		},
	}
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewManager(enabledConfig(t))

	token, err := m.GenerateJWT("garage", "viewer")
	require.NoError(t, err)

	claims, err := m.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "garage", claims.Username)
	assert.Equal(t, "viewer", claims.Role)
	assert.Equal(t, "obd-gateway", claims.Issuer)
}

func TestValidateJWTRejectsWrongSecret(t *testing.T) {
	m := NewManager(enabledConfig(t))
	token, err := m.GenerateJWT("garage", "viewer")
	require.NoError(t, err)

	other := NewManager(config.AuthConfig{JWTSecret: "different", JWTExpiration: 5})
	_, err = other.ValidateJWT(token)
	assert.Error(t, err)
}

func TestValidateAPIKey(t *testing.T) {
	m := NewManager(enabledConfig(t))
	assert.True(t, m.ValidateAPIKey("key-one"))
	assert.True(t, m.ValidateAPIKey("key-two"))
	assert.False(t, m.ValidateAPIKey("key-three"))
	assert.False(t, m.ValidateAPIKey(""))
}

func TestAuthenticateUser(t *testing.T) {
	m := NewManager(enabledConfig(t))

	role, err := m.AuthenticateUser("garage", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "viewer", role)

	_, err = m.AuthenticateUser("garage", "wrong")
	assert.Error(t, err)

	_, err = m.AuthenticateUser("nobody", "hunter2")
	assert.Error(t, err)
}

func middlewareStatus(t *testing.T, m *Manager, mutate func(*http.Request)) int {
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	m := NewManager(config.AuthConfig{Enabled: false})
	assert.Equal(t, http.StatusOK, middlewareStatus(t, m, nil))
}

func TestMiddlewareRequiresCredentials(t *testing.T) {
	m := NewManager(enabledConfig(t))
	assert.Equal(t, http.StatusUnauthorized, middlewareStatus(t, m, nil))
}

func TestMiddlewareAPIKey(t *testing.T) {
	m := NewManager(enabledConfig(t))

	code := middlewareStatus(t, m, func(r *http.Request) { r.Header.Set("X-API-Key", "key-one") })
	assert.Equal(t, http.StatusOK, code)

	code = middlewareStatus(t, m, func(r *http.Request) { r.Header.Set("X-API-Key", "bogus") })
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMiddlewareTokenSources(t *testing.T) {
	m := NewManager(enabledConfig(t))
	token, err := m.GenerateJWT("garage", "viewer")
	require.NoError(t, err)

	// Browser websocket clients can only pass a query parameter.
	code := middlewareStatus(t, m, func(r *http.Request) {
		q := r.URL.Query()
		q.Set("token", token)
		r.URL.RawQuery = q.Encode()
	})
	assert.Equal(t, http.StatusOK, code)

	code = middlewareStatus(t, m, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	assert.Equal(t, http.StatusOK, code)

	code = middlewareStatus(t, m, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-token")
	})
	assert.Equal(t, http.StatusUnauthorized, code)
}
